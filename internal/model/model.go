package model

import "time"

// CheckIn is a single check-in as returned by the upstream API, already
// normalized into Go types. Values are never modified after the fetcher
// builds them.
type CheckIn struct {
	ID string

	Venue Venue

	// CreatedAt carries the check-in's own UTC offset as its Location.
	CreatedAt time.Time

	Shout string

	// DaysSinceLastVisit is nil when the API did not report a previous visit.
	DaysSinceLastVisit *int

	// WasMayor is the mayorship held at check-in time, not today.
	WasMayor bool

	Private bool
}

type Venue struct {
	ID      string
	Name    string
	Address []string // formatted address lines, absent components dropped

	// HasCoords is false when the API omitted lat/lng.
	HasCoords bool
	Lat       float64
	Lng       float64
}

// User is the authenticated account the check-ins belong to.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	CanonicalURL string
}

// CalendarEvent is the sink-facing representation of one check-in.
type CalendarEvent struct {
	UID       string
	CheckinID string

	Title       string
	Location    string
	Description string
	URL         string

	Start time.Time
	End   time.Time
}
