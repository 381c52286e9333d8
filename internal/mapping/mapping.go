// Package mapping turns check-ins into calendar events.
package mapping

import (
	"strconv"
	"strings"
	"time"

	"swarmcal/internal/model"
)

// EventDuration is the fixed length given to every check-in event.
const EventDuration = 15 * time.Minute

// UIDDomain qualifies event UIDs so they are globally unique.
const UIDDomain = "foursquare.com"

// Event maps one check-in to its calendar event. It is pure: equal inputs
// yield equal events. urlBase is the link prefix the check-in id is
// appended to, e.g. "https://foursquare.com/user/123/checkin".
func Event(c model.CheckIn, urlBase string) model.CalendarEvent {
	return model.CalendarEvent{
		UID:         c.ID + "@" + UIDDomain,
		CheckinID:   c.ID,
		Title:       "@ " + c.Venue.Name,
		Location:    Location(c.Venue),
		Description: Description(c),
		URL:         strings.TrimRight(urlBase, "/") + "/" + c.ID,
		Start:       c.CreatedAt,
		End:         c.CreatedAt.Add(EventDuration),
	}
}

// Events maps check-ins in order.
func Events(cs []model.CheckIn, urlBase string) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(cs))
	for _, c := range cs {
		out = append(out, Event(c, urlBase))
	}
	return out
}

// Location is the venue name followed by its address lines.
func Location(v model.Venue) string {
	parts := make([]string, 0, 1+len(v.Address))
	parts = append(parts, v.Name)
	for _, line := range v.Address {
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}

// Description joins the shout and the metadata lines that apply.
func Description(c model.CheckIn) string {
	var lines []string
	if c.Shout != "" {
		lines = append(lines, c.Shout)
	}
	if c.DaysSinceLastVisit != nil {
		lines = append(lines, "Days since last visit: "+strconv.Itoa(*c.DaysSinceLastVisit))
	}
	if c.WasMayor {
		lines = append(lines, "Mayor at the time")
	}
	return strings.Join(lines, "\n")
}
