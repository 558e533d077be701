// Package media validates locally selected images and encodes them into
// self-contained data URIs that are stored inline on a project.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"campuscanvas/pkg/domain"
)

const (
	// DefaultMaxFiles is the largest gallery a project may carry.
	DefaultMaxFiles = 4
	// DefaultMaxTotalBytes caps the summed raw size of one gallery.
	DefaultMaxTotalBytes int64 = 950 * 1024
)

// Limits bounds a single ingestion.
type Limits struct {
	MaxFiles      int
	MaxTotalBytes int64
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxTotalBytes: DefaultMaxTotalBytes}
}

func (l Limits) normalized() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = DefaultMaxTotalBytes
	}
	return l
}

// File is one locally selected blob. Size must be the declared byte size.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromBytes wraps an in-memory blob.
func FromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FromPath describes a file on disk. The file is opened lazily during ingestion.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromMultipart describes an uploaded form file.
func FromMultipart(h *multipart.FileHeader) File {
	return File{
		Name:        h.Filename,
		ContentType: h.Header.Get("Content-Type"),
		Size:        h.Size,
		Open: func() (io.ReadCloser, error) {
			return h.Open()
		},
	}
}

// Pipeline validates and encodes image sets.
type Pipeline struct {
	limits Limits
}

// NewPipeline builds a pipeline; zero limits fall back to the defaults.
func NewPipeline(limits Limits) *Pipeline {
	return &Pipeline{limits: limits.normalized()}
}

// Limits returns the bounds enforced by the pipeline.
func (p *Pipeline) Limits() Limits {
	return p.limits
}

// Check applies the count and total size constraints without reading any file.
func (p *Pipeline) Check(files []File) error {
	if len(files) > p.limits.MaxFiles {
		return &domain.ValidationError{
			Code:    domain.CodeTooManyFiles,
			Field:   "images",
			Message: fmt.Sprintf("too many files: max %d images allowed, got %d", p.limits.MaxFiles, len(files)),
			Limit:   int64(p.limits.MaxFiles),
			Total:   int64(len(files)),
		}
	}
	var total int64
	for _, f := range files {
		if f.Size < 0 {
			return domain.NewValidationError(domain.CodeInvalidField, "images", "file %q has an unknown size", f.Name)
		}
		total += f.Size
	}
	if total > p.limits.MaxTotalBytes {
		return &domain.ValidationError{
			Code:  domain.CodePayloadTooLarge,
			Field: "images",
			Message: fmt.Sprintf("payload too large: files total %.2f MB (%d bytes), limit is %d KiB",
				float64(total)/1024/1024, total, p.limits.MaxTotalBytes/1024),
			Limit: p.limits.MaxTotalBytes,
			Total: total,
		}
	}
	return nil
}

// Ingest validates files and encodes each one concurrently into a data URI.
// The result preserves input order. Any failure discards every encoded item.
func (p *Pipeline) Ingest(ctx context.Context, files []File) ([]string, error) {
	if err := p.Check(files); err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			encoded, err := encodeFile(f)
			if err != nil {
				return err
			}
			out[i] = encoded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeFile(f File) (string, error) {
	if f.Open == nil {
		return "", fmt.Errorf("read %q: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %q: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, f.Size+1))
	if err != nil {
		return "", fmt.Errorf("read %q: %w", f.Name, err)
	}
	if int64(len(data)) != f.Size {
		return "", fmt.Errorf("read %q: got %d bytes, declared %d", f.Name, len(data), f.Size)
	}
	contentType, err := imageType(f.ContentType, data)
	if err != nil {
		return "", &domain.ValidationError{
			Code:    domain.CodeUnsupportedMedia,
			Field:   "images",
			Message: fmt.Sprintf("%q is not an image", f.Name),
		}
	}
	return Encode(contentType, data), nil
}

func imageType(declared string, data []byte) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("media type %s", mediaType)
	}
	return mediaType, nil
}
