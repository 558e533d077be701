package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"campuscanvas/pkg/domain"
)

// Slot field names. The role marker and the cached identity are stored apart
// and a session is only restored when both are present.
const (
	roleField = "appRole"
	userField = "user_info"
)

type slotRecord struct {
	Role domain.UserRole `json:"appRole"`
	User *slotUser       `json:"user_info,omitempty"`
}

type slotUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// FileSlot stores the session as a JSON file readable only by the owner.
type FileSlot struct {
	path string
}

// NewFileSlot returns a slot backed by path.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// DefaultFilePath returns the per-user session file location.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "campuscanvas", "session.json"), nil
}

// Save writes the session atomically.
func (f *FileSlot) Save(_ context.Context, s domain.Session) error {
	data, err := json.Marshal(slotRecord{Role: s.Role, User: &slotUser{ID: s.ID, DisplayName: s.DisplayName}})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Load reads the session file. A missing file means nobody is logged in.
func (f *FileSlot) Load(_ context.Context) (domain.Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("read session file: %w", err)
	}
	var rec slotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Session{}, false, fmt.Errorf("%w: %v", ErrCorruptSlot, err)
	}
	if rec.Role == "" || rec.User == nil {
		return domain.Session{}, false, nil
	}
	return domain.Session{ID: rec.User.ID, DisplayName: rec.User.DisplayName, Role: rec.Role}, true, nil
}

// Clear deletes the session file.
func (f *FileSlot) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// RedisSlot stores the session in a Redis hash, optionally expiring it.
type RedisSlot struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSlot returns a slot stored under key. A zero ttl never expires.
func NewRedisSlot(client *redis.Client, key string, ttl time.Duration) *RedisSlot {
	return &RedisSlot{client: client, key: key, ttl: ttl}
}

// Save writes both slot fields in one transaction.
func (r *RedisSlot) Save(ctx context.Context, s domain.Session) error {
	user, err := json.Marshal(slotUser{ID: s.ID, DisplayName: s.DisplayName})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, roleField, string(s.Role), userField, string(user))
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	return err
}

// Load reads the slot hash.
func (r *RedisSlot) Load(ctx context.Context) (domain.Session, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return domain.Session{}, false, err
	}
	role, rawUser := fields[roleField], fields[userField]
	if role == "" || rawUser == "" {
		return domain.Session{}, false, nil
	}
	var user slotUser
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return domain.Session{}, false, fmt.Errorf("%w: %v", ErrCorruptSlot, err)
	}
	return domain.Session{ID: user.ID, DisplayName: user.DisplayName, Role: domain.UserRole(role)}, true, nil
}

// Clear removes the slot hash.
func (r *RedisSlot) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
