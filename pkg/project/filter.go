package project

import (
	"strings"

	"campuscanvas/pkg/domain"
)

// Filter narrows a listing by category and by a case-insensitive title
// substring. The zero Filter matches every project.
type Filter struct {
	Category domain.Category
	Query    string
}

// ParseFilter builds a Filter from raw listing parameters. An empty category
// or "All" leaves the category unrestricted.
func ParseFilter(category, query string) (Filter, error) {
	f := Filter{Query: strings.TrimSpace(query)}
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return f, nil
	}
	c, ok := domain.ParseCategory(category)
	if !ok {
		return Filter{}, domain.NewValidationError(domain.CodeInvalidField, "category", "unknown category %q", category)
	}
	f.Category = c
	return f, nil
}

// Match reports whether p passes the filter.
func (f Filter) Match(p domain.Project) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	return f.Query == "" || strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Query))
}

// Apply returns the matching projects in their original order.
func (f Filter) Apply(projects []domain.Project) []domain.Project {
	if f == (Filter{}) {
		return projects
	}
	res := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if f.Match(p) {
			res = append(res, p)
		}
	}
	return res
}
