// Package kml writes check-ins as a KML placemark file.
package kml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"swarmcal/internal/fileutil"
	appLog "swarmcal/internal/log"
	"swarmcal/internal/model"
)

const namespace = "http://www.opengis.net/kml/2.2"

type document struct {
	XMLName xml.Name `xml:"kml"`
	Xmlns   string   `xml:"xmlns,attr"`
	Doc     struct {
		Folder folder `xml:"Folder"`
	} `xml:"Document"`
}

type folder struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description"`
	Placemarks  []placemark `xml:"Placemark"`
}

type placemark struct {
	Name        string `xml:"name"`
	Description cdata  `xml:"description"`
	Address     string `xml:"address,omitempty"`
	Visibility  int    `xml:"visibility"`
	TimeStamp   struct {
		When string `xml:"when"`
	} `xml:"TimeStamp"`
	Point point `xml:"Point"`
}

type point struct {
	Extrude      int    `xml:"extrude"`
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

// FolderName is the folder title used for user's history.
func FolderName(u model.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return "foursquare checkin history for " + name
}

// Encode renders check-ins as KML. Check-ins whose venue has no
// coordinates are left out.
func Encode(u model.User, checkins []model.CheckIn) ([]byte, error) {
	var doc document
	doc.Xmlns = namespace
	doc.Doc.Folder.Name = FolderName(u)
	doc.Doc.Folder.Description = doc.Doc.Folder.Name

	skipped := 0
	for _, c := range checkins {
		if !c.Venue.HasCoords {
			skipped++
			appLog.Debug("kml: skipping checkin without coordinates", "id", c.ID)
			continue
		}
		doc.Doc.Folder.Placemarks = append(doc.Doc.Folder.Placemarks, newPlacemark(c))
	}
	if skipped > 0 {
		appLog.Info("kml: checkins without coordinates left out", "count", skipped)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func newPlacemark(c model.CheckIn) placemark {
	venueURL := "https://foursquare.com/v/" + c.Venue.ID

	desc := []string{fmt.Sprintf(`@<a href="%s">%s</a>`, venueURL, c.Venue.Name)}
	if c.Shout != "" {
		desc = append(desc, `"`+c.Shout+`"`)
	}
	desc = append(desc, "Timezone offset: "+c.CreatedAt.Format("-07:00"))

	p := placemark{
		Name:        c.Venue.Name,
		Description: cdata{Text: strings.Join(desc, "\n")},
		Address:     strings.Join(c.Venue.Address, ", "),
		Visibility:  1,
		Point: point{
			Extrude:      1,
			AltitudeMode: "relativeToGround",
			Coordinates: strconv.FormatFloat(c.Venue.Lng, 'f', -1, 64) + "," +
				strconv.FormatFloat(c.Venue.Lat, 'f', -1, 64),
		},
	}
	if c.Private {
		p.Visibility = 0
	}
	p.TimeStamp.When = c.CreatedAt.Format(time.RFC3339)
	return p
}

// WriteFile replaces path with the KML rendering of checkins.
func WriteFile(path string, u model.User, checkins []model.CheckIn) error {
	if path == "" {
		return errors.New("kml path is empty")
	}
	data, err := Encode(u, checkins)
	if err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	appLog.Info("kml file written", "path", path, "checkins", len(checkins), "bytes", len(data))
	return nil
}
