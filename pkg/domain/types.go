package domain

import "time"

type ProjectStatus string

const (
	StatusPending  ProjectStatus = "Pending"
	StatusApproved ProjectStatus = "Approved"
	StatusRejected ProjectStatus = "Rejected"
)

// CanTransitionTo reports whether moderation may move a project from s to next.
// Every edge among the three states is allowed except re-entering Pending.
// Re-applying the current decision is allowed and acts as a no-op.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	switch next {
	case StatusApproved, StatusRejected:
	default:
		return false
	}
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

type Category string

const (
	CategoryWebApp Category = "Web App"
	CategoryMobile Category = "Mobile App"
	CategoryGame   Category = "Game"
	CategoryAIML   Category = "AI / ML"
	CategoryIoT    Category = "IoT / Hardware"
)

const (
	DefaultCategory = CategoryWebApp
	DefaultColor    = "from-blue-500 to-indigo-500"
	DefaultIcon     = "🚀"
)

// Categories lists the accepted categories in display order.
var Categories = []Category{CategoryWebApp, CategoryMobile, CategoryGame, CategoryAIML, CategoryIoT}

// ParseCategory resolves a category name; empty input yields the default.
func ParseCategory(name string) (Category, bool) {
	if name == "" {
		return DefaultCategory, true
	}
	for _, c := range Categories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Project is a submitted work item with metadata, media and moderation status.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    Category      `json:"category"`
	Link        string        `json:"link"`
	Author      string        `json:"author"`
	AuthorID    string        `json:"authorId"`
	Status      ProjectStatus `json:"status"`
	Gallery     []string      `json:"gallery"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Views       int           `json:"views"`
	Color       string        `json:"color,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Draft carries the caller-supplied fields of a new project.
// Status, ID and ImageURL are always assigned by the repository.
type Draft struct {
	Title       string
	Description string
	Category    Category
	Link        string
	Author      string
	AuthorID    string
	Gallery     []string
	Color       string
	Icon        string
}

// User is a stored account.
type User struct {
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is the role-bearing identity of the current operator.
type Session struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`
}

// Anonymous reports whether the session carries no identity.
func (s Session) Anonymous() bool {
	return s.ID == ""
}

// SessionFor builds the session view of a stored user.
func SessionFor(u User) Session {
	return Session{ID: u.Username, DisplayName: u.FullName, Role: u.Role}
}

// Stats summarises moderation queues.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}
