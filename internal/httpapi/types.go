package httpapi

import "annfeed/internal/domain"

// ListResponse is the envelope shape of GET /api/announcements. It matches
// what the announcements service returns so clients can point at the relay.
type ListResponse struct {
	Announcements []domain.Announcement `json:"announcements"`
	Total         int                   `json:"total"`
	TotalPages    int                   `json:"total_pages"`
	PageSize      int                   `json:"page_size"`
	Page          int                   `json:"page"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Upstream    string `json:"upstream"`
	Recent      int    `json:"recent"`
	Seen        int    `json:"seen"`
	Subscribers int    `json:"subscribers"`
	StartedAt   string `json:"started_at"`
}

// DatesResponse is returned by GET /api/dates.
type DatesResponse struct {
	Dates []string `json:"dates"`
}
