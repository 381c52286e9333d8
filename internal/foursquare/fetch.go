package foursquare

import (
	"context"
	"fmt"

	appLog "swarmcal/internal/log"
	"swarmcal/internal/model"
)

// Mode selects how much history to fetch.
type Mode string

const (
	ModeRecent Mode = "recent"
	ModeAll    Mode = "all"
)

// maxPages bounds an all-mode fetch in case the API keeps returning full
// pages past the reported count.
const maxPages = 100000

// CheckinLister is the part of Client the fetcher needs.
type CheckinLister interface {
	Checkins(ctx context.Context, offset, limit int) (CheckinPage, error)
}

// FetchOptions controls Fetch.
type FetchOptions struct {
	Mode     Mode
	PageSize int
	// Max caps the number of check-ins returned in ModeAll. Zero means no cap.
	Max int
}

// Fetch returns the user's check-ins newest first.
//
// ModeRecent makes a single request. ModeAll pages by offset until a short
// or empty page, until the offset reaches the reported total, or until Max
// is reached. Any error aborts the fetch and nothing is returned.
func Fetch(ctx context.Context, api CheckinLister, opts FetchOptions) ([]model.CheckIn, error) {
	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("foursquare: page size must be positive, got %d", opts.PageSize)
	}

	switch opts.Mode {
	case ModeRecent, "":
		page, err := api.Checkins(ctx, 0, opts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("checkins offset 0: %w", err)
		}
		return page.Items, nil
	case ModeAll:
		return fetchAll(ctx, api, opts)
	default:
		return nil, fmt.Errorf("foursquare: unknown fetch mode %q", opts.Mode)
	}
}

func fetchAll(ctx context.Context, api CheckinLister, opts FetchOptions) ([]model.CheckIn, error) {
	var (
		out    []model.CheckIn
		seen   = make(map[string]struct{})
		offset int
	)

	appLog.Debug("fetching all checkins", "page_size", opts.PageSize, "max", opts.Max)

	for pages := 0; pages < maxPages; pages++ {
		page, err := api.Checkins(ctx, offset, opts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("checkins offset %d: %w", offset, err)
		}

		appLog.Debug("fetched checkin page",
			"offset", offset,
			"got", page.Fetched,
			"kept", len(page.Items),
			"total", page.Count,
		)

		for _, ci := range page.Items {
			// New check-ins arriving while paging shift older ones onto the
			// next page, so the same id can show up twice.
			if _, dup := seen[ci.ID]; dup {
				appLog.Debug("dropping duplicate checkin", "id", ci.ID, "offset", offset)
				continue
			}
			seen[ci.ID] = struct{}{}
			out = append(out, ci)

			if opts.Max > 0 && len(out) >= opts.Max {
				appLog.Debug("reached max checkins", "max", opts.Max)
				return out, nil
			}
		}

		offset += page.Fetched

		if page.Fetched == 0 || page.Fetched < opts.PageSize {
			break
		}
		if page.Count > 0 && offset >= page.Count {
			break
		}
	}

	return out, nil
}
