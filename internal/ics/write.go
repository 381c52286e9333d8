package ics

import (
	"errors"

	ical "github.com/arran4/golang-ical"

	"swarmcal/internal/fileutil"
	appLog "swarmcal/internal/log"
	"swarmcal/internal/model"
)

// ProductService is embedded into PRODID as "-//swarmcal//Golang ICS Library".
const ProductService = "swarmcal"

// Options controls calendar-level properties of the output.
type Options struct {
	// CalendarName becomes X-WR-CALNAME when non-empty.
	CalendarName string
}

// Encode serializes events into one VCALENDAR, one VEVENT per event in
// input order.
//
// Nothing time-dependent is written: DTSTAMP, CREATED and LAST-MODIFIED
// all use the event end, so equal input gives byte-identical output.
func Encode(events []model.CalendarEvent, opts Options) []byte {
	cal := ical.NewCalendarFor(ProductService)
	cal.SetMethod(ical.MethodPublish)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.UID)
		ve.SetDtStampTime(ev.End)
		ve.SetCreatedTime(ev.End)
		ve.SetModifiedAt(ev.End)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
		ve.SetLocation(ev.Location)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.URL != "" {
			ve.SetURL(ev.URL)
		}
	}

	return []byte(cal.Serialize())
}

// WriteFile replaces path with the encoded calendar. On failure the
// previous file, if any, is left as it was.
func WriteFile(path string, events []model.CalendarEvent, opts Options) error {
	if path == "" {
		return errors.New("ics path is empty")
	}

	data := Encode(events, opts)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}

	appLog.Info("ics file written", "path", path, "events", len(events), "bytes", len(data))
	return nil
}
