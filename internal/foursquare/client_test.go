package foursquare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const checkinsBody = `{
  "meta": {"code": 200},
  "response": {
    "checkins": {
      "count": 3,
      "items": [
        {
          "id": "abc123",
          "createdAt": 1704110400,
          "timeZoneOffset": 60,
          "shout": "Great coffee",
          "isMayor": true,
          "beenHere": {"lastCheckinExpiredAt": 1703678400},
          "venue": {
            "id": "v1",
            "name": "Joe's Diner",
            "location": {"lat": 51.5, "lng": -0.12, "formattedAddress": ["12 Main St", " ", "London"]}
          }
        },
        {"id": "novenue", "createdAt": 1704100000, "timeZoneOffset": 0},
        {
          "id": "def456",
          "createdAt": 1704000000,
          "timeZoneOffset": -300,
          "private": true,
          "venue": {"id": "v2", "name": "Park"}
        }
      ]
    }
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:     srv.URL + "/v2",
		AccessToken: "tok",
		APIVersion:  "20240101",
		Timeout:     5 * time.Second,
		Trace:       true,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_Checkins(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/users/self/checkins" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		for k, want := range map[string]string{
			"oauth_token": "tok",
			"v":           "20240101",
			"limit":       "250",
			"offset":      "500",
			"sort":        "newestfirst",
		} {
			if got := q.Get(k); got != want {
				t.Errorf("query %s = %q, want %q", k, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(checkinsBody))
	})

	page, err := c.Checkins(context.Background(), 500, 250)
	if err != nil {
		t.Fatalf("Checkins: %v", err)
	}
	if page.Count != 3 || page.Fetched != 3 {
		t.Fatalf("count/fetched = %d/%d, want 3/3", page.Count, page.Fetched)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2 (venue-less item skipped)", len(page.Items))
	}

	first := page.Items[0]
	if first.ID != "abc123" || first.Venue.Name != "Joe's Diner" {
		t.Fatalf("first = %+v", first)
	}
	if _, off := first.CreatedAt.Zone(); off != 3600 {
		t.Errorf("zone offset = %d, want 3600", off)
	}
	if !first.CreatedAt.Equal(time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("createdAt = %v", first.CreatedAt)
	}
	if got := strings.Join(first.Venue.Address, "|"); got != "12 Main St|London" {
		t.Errorf("address = %q", got)
	}
	if !first.Venue.HasCoords || first.Venue.Lat != 51.5 || first.Venue.Lng != -0.12 {
		t.Errorf("coords = %+v", first.Venue)
	}
	if first.DaysSinceLastVisit == nil || *first.DaysSinceLastVisit != 5 {
		t.Errorf("days since last visit = %v, want 5", first.DaysSinceLastVisit)
	}
	if !first.WasMayor || first.Shout != "Great coffee" {
		t.Errorf("mayor/shout = %v/%q", first.WasMayor, first.Shout)
	}

	second := page.Items[1]
	if second.DaysSinceLastVisit != nil || second.WasMayor || !second.Private {
		t.Errorf("second = %+v", second)
	}
	if second.Venue.HasCoords {
		t.Error("second should have no coords")
	}
	if _, off := second.CreatedAt.Zone(); off != -300*60 {
		t.Errorf("zone offset = %d, want -18000", off)
	}
}

func TestClient_Self(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/users/self" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"meta":{"code":200},"response":{"user":{"id":"u1","firstName":"Ada","lastName":"L","canonicalUrl":"https://foursquare.com/user/u1"}}}`))
	})

	u, err := c.Self(context.Background())
	if err != nil {
		t.Fatalf("Self: %v", err)
	}
	if u.CanonicalURL != "https://foursquare.com/user/u1" || u.FirstName != "Ada" {
		t.Fatalf("user = %+v", u)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		wantMal  bool
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"meta":{"code":401,"errorType":"invalid_auth","errorDetail":"OAuth token invalid or revoked."}}`,
			wantAuth: true,
		},
		{
			name:     "invalid_auth on 403",
			status:   http.StatusForbidden,
			body:     `{"meta":{"code":403,"errorType":"invalid_auth"}}`,
			wantAuth: true,
		},
		{
			name:   "server error with html body",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
		},
		{
			name:    "missing checkins object",
			status:  http.StatusOK,
			body:    `{"meta":{"code":200},"response":{}}`,
			wantMal: true,
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `nope`,
			wantMal: true,
		},
		{
			name:    "item without id",
			status:  http.StatusOK,
			body:    `{"meta":{"code":200},"response":{"checkins":{"count":1,"items":[{"createdAt":1}]}}}`,
			wantMal: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Checkins(context.Background(), 0, 250)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnauthorized); got != tt.wantAuth {
				t.Errorf("Is(ErrUnauthorized) = %v, want %v (err %v)", got, tt.wantAuth, err)
			}
			if got := errors.Is(err, ErrMalformed); got != tt.wantMal {
				t.Errorf("Is(ErrMalformed) = %v, want %v (err %v)", got, tt.wantMal, err)
			}
			if tt.status != http.StatusOK {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
					t.Errorf("expected APIError with status %d, got %v", tt.status, err)
				}
			}
		})
	}
}

func TestClient_TransportErrorRedactsToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: base, AccessToken: "supersecret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Checkins(context.Background(), 0, 10)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "supersecret") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Options{BaseURL: "https://x.test"}); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewClient(Options{BaseURL: "/relative", AccessToken: "t"}); err == nil {
		t.Error("expected error for relative base url")
	}
}

func TestZoneName(t *testing.T) {
	t.Parallel()

	for in, want := range map[int]string{0: "+00:00", 60: "+01:00", -300: "-05:00", 330: "+05:30"} {
		if got := zoneName(in); got != want {
			t.Errorf("zoneName(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFloorDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{"zero", 0, 0},
		{"under a day", 23 * time.Hour, 0},
		{"exactly five days", 5 * 24 * time.Hour, 5},
		{"five and a half days", 5*24*time.Hour + 12*time.Hour, 5},
		{"last visit one hour later", -time.Hour, -1},
		{"last visit exactly a day later", -24 * time.Hour, -1},
		{"last visit a day and a minute later", -24*time.Hour - time.Minute, -2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := floorDays(tt.d); got != tt.want {
				t.Fatalf("floorDays(%v) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}

func TestCheckinToModel_LastVisitAfterCheckin(t *testing.T) {
	t.Parallel()

	var a apiCheckin
	body := `{"id":"x1","createdAt":1704110400,"timeZoneOffset":0,
		"beenHere":{"lastCheckinExpiredAt":1704114000},
		"venue":{"id":"v1","name":"Cafe"}}`
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ci, ok, err := a.toModel()
	if err != nil || !ok {
		t.Fatalf("toModel: ok=%v err=%v", ok, err)
	}
	if ci.DaysSinceLastVisit == nil || *ci.DaysSinceLastVisit != -1 {
		t.Fatalf("days since last visit = %v, want -1", ci.DaysSinceLastVisit)
	}
}
