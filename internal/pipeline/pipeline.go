// Package pipeline drives one fetch, map and write pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"swarmcal/internal/caldav"
	"swarmcal/internal/config"
	"swarmcal/internal/foursquare"
	"swarmcal/internal/ics"
	"swarmcal/internal/kml"
	appLog "swarmcal/internal/log"
	"swarmcal/internal/mapping"
	"swarmcal/internal/model"
)

// Options are the already-validated command line choices.
type Options struct {
	Mode foursquare.Mode
	Kind config.Kind
	// Trace enables request/response tracing in the API session.
	Trace bool
}

// API is the upstream session the driver needs.
type API interface {
	foursquare.CheckinLister
	Self(ctx context.Context) (model.User, error)
}

// Deps lets callers replace the collaborators Run would otherwise build
// from cfg. Nil fields are built from cfg.
type Deps struct {
	API         API
	CalDAVStore caldav.Store
}

// Run performs one complete pass and returns an error naming the step
// that failed.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	return RunWith(ctx, cfg, opts, Deps{})
}

// RunWith is Run with injectable collaborators.
func RunWith(ctx context.Context, cfg *config.Config, opts Options, deps Deps) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := cfg.Validate(opts.Kind); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	api := deps.API
	if api == nil {
		client, err := foursquare.NewClient(foursquare.Options{
			BaseURL:     cfg.Foursquare.BaseURL,
			AccessToken: cfg.Foursquare.AccessToken,
			APIVersion:  cfg.Foursquare.APIVersion,
			Timeout:     time.Duration(cfg.Foursquare.TimeoutSeconds) * time.Second,
			Trace:       opts.Trace,
		})
		if err != nil {
			return fmt.Errorf("api session: %w", err)
		}
		api = client
	}

	checkins, err := foursquare.Fetch(ctx, api, foursquare.FetchOptions{
		Mode:     opts.Mode,
		PageSize: cfg.Foursquare.PageSize,
		Max:      cfg.Foursquare.MaxCheckins,
	})
	if err != nil {
		return fmt.Errorf("fetch checkins: %w", err)
	}
	appLog.Info("fetched checkins from the API", "count", len(checkins), "mode", string(opts.Mode))

	if opts.Kind == config.KindKML {
		u, err := api.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch user: %w", err)
		}
		if err := kml.WriteFile(cfg.Local.KMLPath, u, checkins); err != nil {
			return fmt.Errorf("write kml: %w", err)
		}
		return nil
	}

	urlBase := cfg.Foursquare.CheckinURLBase
	if urlBase == "" {
		u, err := api.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch user: %w", err)
		}
		if u.CanonicalURL == "" {
			return fmt.Errorf("fetch user: %w: no canonicalUrl", foursquare.ErrMalformed)
		}
		urlBase = strings.TrimRight(u.CanonicalURL, "/") + "/checkin"
	}

	events := mapping.Events(checkins, urlBase)

	switch opts.Kind {
	case config.KindICS:
		if err := ics.WriteFile(cfg.Local.ICSPath, events, ics.Options{CalendarName: cfg.Local.CalendarName}); err != nil {
			return fmt.Errorf("write ics: %w", err)
		}
	case config.KindCalDAV:
		store := deps.CalDAVStore
		if store == nil {
			remote, err := caldav.NewRemote(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, nil)
			if err != nil {
				return fmt.Errorf("caldav sync: %w", err)
			}
			store = remote
		}
		if _, err := caldav.NewSink(store, cfg.CalDAV.CalendarName).Sync(ctx, events); err != nil {
			return fmt.Errorf("caldav sync: %w", err)
		}
	}
	return nil
}
