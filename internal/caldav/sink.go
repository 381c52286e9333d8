package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"go.uber.org/multierr"

	appLog "swarmcal/internal/log"
	"swarmcal/internal/model"
)

// ProductID is written into every uploaded calendar object.
const ProductID = "-//swarmcal//CalDAV sync//EN"

// Store is the set of CalDAV operations the sink needs. *Remote
// implements it.
type Store interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	MakeCalendar(ctx context.Context, path, name string) error
}

// Result summarizes one Sync.
type Result struct {
	CalendarPath string
	Created      int
	Skipped      int
	Failed       int
}

// Sink uploads events into one named calendar.
type Sink struct {
	store        Store
	calendarName string
}

func NewSink(store Store, calendarName string) *Sink {
	return &Sink{store: store, calendarName: strings.TrimSpace(calendarName)}
}

// Sync ensures the calendar exists, then creates every event whose object
// is not already on the server. Existing objects are left untouched, so
// repeated runs never duplicate events.
//
// Failing to find or create the calendar aborts. A failed upload is
// logged and collected, and the remaining events are still attempted;
// the returned error then summarizes all failures.
func (s *Sink) Sync(ctx context.Context, events []model.CalendarEvent) (Result, error) {
	var res Result

	calPath, err := s.ensureCalendar(ctx)
	if err != nil {
		return res, err
	}
	res.CalendarPath = calPath

	existing, err := s.existingObjects(ctx, calPath)
	if err != nil {
		return res, fmt.Errorf("list calendar %s: %w", calPath, err)
	}
	appLog.Debug("calendar objects on server", "path", calPath, "count", len(existing.paths))

	var errs error
	for _, ev := range events {
		objPath := ObjectPath(calPath, ev.CheckinID)

		if existing.has(objPath, ev.UID) {
			res.Skipped++
			continue
		}

		appLog.Debug("uploading event", "uid", ev.UID, "path", objPath)
		if _, err := s.store.PutCalendarObject(ctx, objPath, NewObject(ev)); err != nil {
			res.Failed++
			appLog.Error("event upload failed", err, "checkin", ev.CheckinID, "path", objPath)
			errs = multierr.Append(errs, fmt.Errorf("checkin %s: %w", ev.CheckinID, err))
			continue
		}
		existing.add(objPath, ev.UID)
		res.Created++
	}

	appLog.Info("caldav sync finished",
		"calendar", s.calendarName,
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)

	if errs != nil {
		return res, fmt.Errorf("%d of %d events failed: %w", res.Failed, len(events), errs)
	}
	return res, nil
}

// ensureCalendar returns the path of the calendar whose display name
// matches, creating it under the home set when none does.
func (s *Sink) ensureCalendar(ctx context.Context) (string, error) {
	principal, err := s.store.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := s.store.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	if home == "" {
		return "", errors.New("server reported no calendar home set")
	}

	cals, err := s.store.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	appLog.Debug("found calendars on the server", "count", len(cals))

	for _, c := range cals {
		if strings.TrimSpace(c.Name) == s.calendarName {
			appLog.Info("found existing calendar", "name", s.calendarName, "path", c.Path)
			return c.Path, nil
		}
	}

	newPath := path.Join(home, slug(s.calendarName)) + "/"
	appLog.Info("creating new calendar", "name", s.calendarName, "path", newPath)
	if err := s.store.MakeCalendar(ctx, newPath, s.calendarName); err != nil {
		return "", fmt.Errorf("create calendar %q: %w", s.calendarName, err)
	}
	return newPath, nil
}

// remoteIndex holds the object paths and event UIDs already on the server.
type remoteIndex struct {
	paths map[string]struct{}
	uids  map[string]struct{}
}

func (x remoteIndex) has(objPath, uid string) bool {
	if _, ok := x.paths[path.Clean(objPath)]; ok {
		return true
	}
	_, ok := x.uids[uid]
	return ok
}

func (x remoteIndex) add(objPath, uid string) {
	x.paths[path.Clean(objPath)] = struct{}{}
	if uid != "" {
		x.uids[uid] = struct{}{}
	}
}

// uidQuery asks for every VEVENT in a calendar, returning only its UID.
var uidQuery = caldav.CalendarQuery{
	CompRequest: caldav.CalendarCompRequest{
		Name: ical.CompCalendar,
		Comps: []caldav.CalendarCompRequest{{
			Name:  ical.CompEvent,
			Props: []string{ical.PropUID},
		}},
	},
	CompFilter: caldav.CompFilter{
		Name:  ical.CompCalendar,
		Comps: []caldav.CompFilter{{Name: ical.CompEvent}},
	},
}

// existingObjects indexes the calendar with a calendar-query REPORT.
// Objects are matched on path and on UID, so events uploaded under a
// different name by another client are still recognized.
func (s *Sink) existingObjects(ctx context.Context, calPath string) (remoteIndex, error) {
	query := uidQuery
	objs, err := s.store.QueryCalendar(ctx, calPath, &query)
	if err != nil {
		return remoteIndex{}, err
	}

	idx := remoteIndex{
		paths: make(map[string]struct{}, len(objs)),
		uids:  make(map[string]struct{}, len(objs)),
	}
	for _, o := range objs {
		idx.paths[path.Clean(o.Path)] = struct{}{}
		if o.Data == nil {
			continue
		}
		for _, ev := range o.Data.Events() {
			if uid, err := ev.Props.Text(ical.PropUID); err == nil && uid != "" {
				idx.uids[uid] = struct{}{}
			}
		}
	}
	return idx, nil
}

// ObjectPath is the resource path of a check-in's event inside calPath.
// The id is path-escaped so it always names a single segment.
func ObjectPath(calPath, checkinID string) string {
	return path.Join(calPath, url.PathEscape(checkinID)+".ics")
}

// NewObject builds the single-event calendar uploaded for ev. Times are
// written in UTC; the server has no VTIMEZONE for check-in offsets.
func NewObject(ev model.CalendarEvent) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	e := ical.NewEvent()
	e.Props.SetText(ical.PropUID, ev.UID)
	e.Props.SetDateTime(ical.PropDateTimeStamp, ev.End.UTC())
	e.Props.SetDateTime(ical.PropCreated, ev.End.UTC())
	e.Props.SetDateTime(ical.PropLastModified, ev.End.UTC())
	e.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
	e.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	e.Props.SetText(ical.PropSummary, ev.Title)
	e.Props.SetText(ical.PropLocation, ev.Location)
	if ev.Description != "" {
		e.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.URL != "" {
		p := ical.NewProp(ical.PropURL)
		p.Value = ev.URL
		e.Props.Set(p)
	}

	cal.Children = append(cal.Children, e.Component)
	return cal
}

// slug turns a display name into a path segment.
func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "calendar"
	}
	return out
}
