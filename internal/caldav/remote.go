package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// Remote is a CalDAV session against one server. It embeds the go-webdav
// client for discovery, listing and PUT, and adds MKCALENDAR, which the
// library client does not issue.
type Remote struct {
	*caldav.Client

	http     webdav.HTTPClient
	endpoint *url.URL
}

// NewRemote connects to endpoint with HTTP basic auth. No request is made
// until the first call.
func NewRemote(endpoint, username, password string, hc *http.Client) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: bad url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("caldav: url %q must be absolute", endpoint)
	}

	var base webdav.HTTPClient = http.DefaultClient
	if hc != nil {
		base = hc
	}
	authed := webdav.HTTPClientWithBasicAuth(base, username, password)

	cl, err := caldav.NewClient(authed, endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: %w", err)
	}

	return &Remote{Client: cl, http: authed, endpoint: u}, nil
}

type mkcalendarBody struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav mkcalendar"`
	Set     davSet   `xml:"DAV: set"`
}

type davSet struct {
	Prop davProp `xml:"DAV: prop"`
}

type davProp struct {
	DisplayName string `xml:"DAV: displayname"`
}

// MakeCalendar creates a calendar collection at path (resolved against the
// endpoint) with the given display name.
func (r *Remote) MakeCalendar(ctx context.Context, path, name string) error {
	body, err := xml.Marshal(mkcalendarBody{Set: davSet{Prop: davProp{DisplayName: name}}})
	if err != nil {
		return err
	}

	target := r.endpoint.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, "MKCALENDAR", target.String(),
		bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("caldav: MKCALENDAR %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
