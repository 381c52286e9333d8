package foursquare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	appLog "swarmcal/internal/log"
	"swarmcal/internal/model"
)

var (
	// ErrUnauthorized reports a rejected or expired access token.
	ErrUnauthorized = errors.New("foursquare: unauthorized")
	// ErrMalformed reports a response missing fields the mapping needs.
	ErrMalformed = errors.New("foursquare: malformed response")
)

// APIError is a non-200 reply from the API.
type APIError struct {
	Status      int
	Code        int
	Type        string
	Detail      string
	unauthorize bool
}

func (e *APIError) Error() string {
	msg := "foursquare: " + strconv.Itoa(e.Status) + " " + http.StatusText(e.Status)
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.unauthorize {
		return ErrUnauthorized
	}
	return nil
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	APIVersion  string
	// Timeout of zero keeps the net/http default.
	Timeout time.Duration
	// Trace logs request URLs (token redacted) and body sizes at DEBUG.
	Trace bool
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client is one authenticated API session. It is owned by a single
// pipeline run and holds no mutable state.
type Client struct {
	base    *url.URL
	token   string
	version string
	http    *http.Client
	trace   bool
}

// NewClient creates a new API Client.
func NewClient(opts Options) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, errors.New("foursquare: access token is empty")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("foursquare: bad base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("foursquare: base url %q must be absolute", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		base:    base,
		token:   opts.AccessToken,
		version: opts.APIVersion,
		http:    hc,
		trace:   opts.Trace,
	}, nil
}

// CheckinPage is one page of the check-ins list.
type CheckinPage struct {
	// Count is the user's total number of check-ins as reported by the API.
	Count int
	// Fetched is the number of raw items in the page, including any
	// skipped for lacking a venue. Paging decisions use this.
	Fetched int
	Items   []model.CheckIn
}

// Checkins fetches one page of the authenticated user's check-ins,
// newest first.
func (c *Client) Checkins(ctx context.Context, offset, limit int) (CheckinPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("sort", "newestfirst")

	var resp struct {
		Checkins *struct {
			Count int          `json:"count"`
			Items []apiCheckin `json:"items"`
		} `json:"checkins"`
	}
	if err := c.get(ctx, "users/self/checkins", q, &resp); err != nil {
		return CheckinPage{}, err
	}
	if resp.Checkins == nil {
		return CheckinPage{}, fmt.Errorf("%w: no checkins object", ErrMalformed)
	}

	page := CheckinPage{
		Count:   resp.Checkins.Count,
		Fetched: len(resp.Checkins.Items),
		Items:   make([]model.CheckIn, 0, len(resp.Checkins.Items)),
	}
	for i, raw := range resp.Checkins.Items {
		ci, ok, err := raw.toModel()
		if err != nil {
			return CheckinPage{}, fmt.Errorf("item %d at offset %d: %w", i, offset, err)
		}
		if !ok {
			// Some very old check-ins carry only id, createdAt and source.
			appLog.Debug("skipping checkin without venue", "id", raw.ID)
			continue
		}
		page.Items = append(page.Items, ci)
	}
	return page, nil
}

// Self returns the authenticated user.
func (c *Client) Self(ctx context.Context) (model.User, error) {
	var resp struct {
		User *struct {
			ID           string `json:"id"`
			FirstName    string `json:"firstName"`
			LastName     string `json:"lastName"`
			CanonicalURL string `json:"canonicalUrl"`
		} `json:"user"`
	}
	if err := c.get(ctx, "users/self", nil, &resp); err != nil {
		return model.User{}, err
	}
	if resp.User == nil {
		return model.User{}, fmt.Errorf("%w: no user object", ErrMalformed)
	}
	return model.User{
		ID:           resp.User.ID,
		FirstName:    resp.User.FirstName,
		LastName:     resp.User.LastName,
		CanonicalURL: resp.User.CanonicalURL,
	}, nil
}

type envelope struct {
	Meta struct {
		Code        int    `json:"code"`
		ErrorType   string `json:"errorType"`
		ErrorDetail string `json:"errorDetail"`
	} `json:"meta"`
	Response json.RawMessage `json:"response"`
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("oauth_token", c.token)
	if c.version != "" {
		q.Set("v", c.version)
	}

	u := c.base.JoinPath(endpoint)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	trace := c.trace && appLog.Enabled(appLog.LevelDebug)
	if trace {
		appLog.Debug("foursquare request", "url", redactURL(u))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The transport error embeds the full URL; keep the token out of it.
		return fmt.Errorf("foursquare: GET %s: %w", redactURL(u), unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("foursquare: read body: %w", err)
	}

	if trace {
		appLog.Debug("foursquare response", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(body))
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code = env.Meta.Code
			apiErr.Type = env.Meta.ErrorType
			apiErr.Detail = env.Meta.ErrorDetail
		}
		apiErr.unauthorize = resp.StatusCode == http.StatusUnauthorized || apiErr.Type == "invalid_auth"
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
	}
	if len(env.Response) == 0 {
		return fmt.Errorf("%w: no response object", ErrMalformed)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// redactURL hides the access token of a request URL for logging purposes.
func redactURL(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("oauth_token") {
		q.Set("oauth_token", "REDACTED")
	}
	cp.RawQuery = q.Encode()
	return cp.String()
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
