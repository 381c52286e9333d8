package foursquare

import (
	"fmt"
	"strings"
	"time"

	"swarmcal/internal/model"
)

// apiCheckin mirrors the subset of a check-in item this tool reads.
type apiCheckin struct {
	ID             string `json:"id"`
	CreatedAt      int64  `json:"createdAt"`
	TimeZoneOffset int    `json:"timeZoneOffset"` // minutes east of UTC
	Shout          string `json:"shout"`
	IsMayor        bool   `json:"isMayor"`
	Private        bool   `json:"private"`

	Venue *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Location *struct {
			Lat              *float64 `json:"lat"`
			Lng              *float64 `json:"lng"`
			FormattedAddress []string `json:"formattedAddress"`
		} `json:"location"`
	} `json:"venue"`

	BeenHere *struct {
		LastCheckinExpiredAt int64 `json:"lastCheckinExpiredAt"`
	} `json:"beenHere"`
}

// toModel converts the raw item. ok is false for items without a venue,
// which callers skip.
func (a apiCheckin) toModel() (ci model.CheckIn, ok bool, err error) {
	if a.ID == "" {
		return ci, false, fmt.Errorf("%w: checkin without id", ErrMalformed)
	}
	if a.CreatedAt <= 0 {
		return ci, false, fmt.Errorf("%w: checkin %s without createdAt", ErrMalformed, a.ID)
	}
	if a.Venue == nil {
		return ci, false, nil
	}

	zone := time.FixedZone(zoneName(a.TimeZoneOffset), a.TimeZoneOffset*60)
	created := time.Unix(a.CreatedAt, 0).In(zone)

	ci = model.CheckIn{
		ID:        a.ID,
		CreatedAt: created,
		Shout:     a.Shout,
		WasMayor:  a.IsMayor,
		Private:   a.Private,
		Venue: model.Venue{
			ID:   a.Venue.ID,
			Name: a.Venue.Name,
		},
	}

	if loc := a.Venue.Location; loc != nil {
		for _, line := range loc.FormattedAddress {
			if line = strings.TrimSpace(line); line != "" {
				ci.Venue.Address = append(ci.Venue.Address, line)
			}
		}
		if loc.Lat != nil && loc.Lng != nil {
			ci.Venue.HasCoords = true
			ci.Venue.Lat = *loc.Lat
			ci.Venue.Lng = *loc.Lng
		}
	}

	if a.BeenHere != nil && a.BeenHere.LastCheckinExpiredAt > 0 {
		days := floorDays(created.Sub(time.Unix(a.BeenHere.LastCheckinExpiredAt, 0)))
		ci.DaysSinceLastVisit = &days
	}

	return ci, true, nil
}

// floorDays counts whole days in d, rounding toward negative infinity.
func floorDays(d time.Duration) int {
	const day = 24 * time.Hour
	n := d / day
	if d%day < 0 {
		n--
	}
	return int(n)
}

// zoneName renders an offset in minutes as "+HH:MM".
func zoneName(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
}
