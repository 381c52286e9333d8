package kml

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swarmcal/internal/model"
)

func sample() (model.User, []model.CheckIn) {
	u := model.User{FirstName: "Ada", LastName: "Lovelace"}
	zone := time.FixedZone("+01:00", 3600)
	return u, []model.CheckIn{
		{
			ID: "abc123",
			Venue: model.Venue{
				ID: "v1", Name: "Joe's Diner & Bar",
				Address:   []string{"12 Main St", "London"},
				HasCoords: true, Lat: 51.5, Lng: -0.12,
			},
			CreatedAt: time.Date(2024, time.January, 1, 13, 0, 0, 0, zone),
			Shout:     "Great coffee",
		},
		{
			ID:        "private1",
			Venue:     model.Venue{ID: "v2", Name: "Home", HasCoords: true, Lat: 1, Lng: 2},
			CreatedAt: time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC),
			Private:   true,
		},
		{
			ID:        "nocoords",
			Venue:     model.Venue{ID: "v3", Name: "Somewhere"},
			CreatedAt: time.Date(2024, time.January, 3, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	u, cs := sample()
	data, err := Encode(u, cs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid XML: %v\n%s", err, data)
	}

	f := doc.Doc.Folder
	if f.Name != "foursquare checkin history for Ada Lovelace" {
		t.Errorf("folder name = %q", f.Name)
	}
	if len(f.Placemarks) != 2 {
		t.Fatalf("placemarks = %d, want 2 (no-coords checkin skipped)", len(f.Placemarks))
	}

	first := f.Placemarks[0]
	if first.Name != "Joe's Diner & Bar" {
		t.Errorf("name = %q", first.Name)
	}
	if first.Address != "12 Main St, London" {
		t.Errorf("address = %q", first.Address)
	}
	if first.Point.Coordinates != "-0.12,51.5" {
		t.Errorf("coordinates = %q", first.Point.Coordinates)
	}
	if first.TimeStamp.When != "2024-01-01T13:00:00+01:00" {
		t.Errorf("when = %q", first.TimeStamp.When)
	}
	if first.Visibility != 1 {
		t.Errorf("visibility = %d", first.Visibility)
	}
	for _, want := range []string{
		`@<a href="https://foursquare.com/v/v1">Joe's Diner & Bar</a>`,
		`"Great coffee"`,
		"Timezone offset: +01:00",
	} {
		if !strings.Contains(first.Description.Text, want) {
			t.Errorf("description missing %q: %q", want, first.Description.Text)
		}
	}

	if f.Placemarks[1].Visibility != 0 {
		t.Errorf("private checkin visibility = %d, want 0", f.Placemarks[1].Visibility)
	}

	if !bytes.Contains(data, []byte("<![CDATA[")) {
		t.Error("description should be written as CDATA")
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	u, cs := sample()
	path := filepath.Join(t.TempDir(), "checkins.kml")
	if err := WriteFile(path, u, cs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(got, []byte("<?xml")) {
		t.Fatalf("missing xml header: %.40s", got)
	}

	if err := WriteFile("", u, cs); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestEncode_ShoutKeptVerbatim(t *testing.T) {
	t.Parallel()

	u, cs := sample()
	tests := []struct {
		name  string
		shout string
		want  string
	}{
		{name: "plain", shout: "Great coffee", want: `"Great coffee"`},
		{name: "embedded quotes", shout: `best "flat white" ever`, want: `"best "flat white" ever"`},
		{name: "newline", shout: "line one\nline two", want: "\"line one\nline two\""},
		{name: "backslash", shout: `C:\temp`, want: `"C:\temp"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := cs[0]
			c.Shout = tt.shout
			data, err := Encode(u, []model.CheckIn{c})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			var doc document
			if err := xml.Unmarshal(data, &doc); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got := doc.Doc.Folder.Placemarks[0].Description.Text
			if !strings.Contains(got, "\n"+tt.want+"\n") {
				t.Fatalf("description = %q, want shout line %q", got, tt.want)
			}
		})
	}
}
