package models

import "strings"

// StatusFilterAll matches every status.
const StatusFilterAll = "all"

// Filter returns the leads whose first name, last name or email contains
// searchText (case-insensitive) and whose status equals statusFilter
// (case-insensitive, "all" or empty matches everything). Input order is kept
// and the input slice is not modified.
func Filter(leads []*Lead, searchText, statusFilter string) []*Lead {
	query := strings.ToLower(strings.TrimSpace(searchText))
	status := strings.TrimSpace(statusFilter)
	matchAll := status == "" || strings.EqualFold(status, StatusFilterAll)

	out := make([]*Lead, 0, len(leads))
	for _, l := range leads {
		if !matchAll && !strings.EqualFold(string(l.Status), status) {
			continue
		}
		if query != "" && !matchesSearch(l, query) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func matchesSearch(l *Lead, query string) bool {
	return strings.Contains(strings.ToLower(l.FirstName), query) ||
		strings.Contains(strings.ToLower(l.LastName), query) ||
		strings.Contains(strings.ToLower(l.Email), query)
}
