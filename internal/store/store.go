// Package store defines the collaborator interfaces the decision layer
// consumes. Real implementations live with the services that own the data
// (CRM sync, transcript ingestion); this package ships only the contracts
// and static stand-ins used for fallback and testing.
package store

import "context"

// Company is a known organization name sourced from the entity store.
type Company struct {
	Name string `json:"name"`
}

// EntityStore supplies known organization names for a product scope.
// Calls may fail; callers are expected to degrade to a static fallback.
type EntityStore interface {
	GetCompanies(ctx context.Context, productScope string) ([]Company, error)
}

// MeetingCountStore reports the candidate meeting population. Used only by
// the aggregate scope check's clarification threshold.
type MeetingCountStore interface {
	CountMeetings(ctx context.Context) (int, error)
}

// StaticEntityStore returns a fixed company list. Used as the degraded-mode
// entity source and in tests.
type StaticEntityStore struct {
	Companies []Company
}

// GetCompanies returns the static list.
func (s *StaticEntityStore) GetCompanies(ctx context.Context, productScope string) ([]Company, error) {
	out := make([]Company, len(s.Companies))
	copy(out, s.Companies)
	return out, nil
}

// StaticMeetingCounts returns a fixed meeting count.
type StaticMeetingCounts struct {
	Count int
}

// CountMeetings returns the static count.
func (s *StaticMeetingCounts) CountMeetings(ctx context.Context) (int, error) {
	return s.Count, nil
}

// FallbackCompanies is the static entity list used when the entity store is
// unreachable and no cached value exists.
func FallbackCompanies() []string {
	return []string{
		"Les Schwab",
		"Acme Manufacturing",
		"Northfield Logistics",
		"Bright Dental Group",
		"Summit Outdoor Supply",
		"Cascade Credit Union",
		"Harbor Freight Lines",
		"Pinewood Brewing",
	}
}
