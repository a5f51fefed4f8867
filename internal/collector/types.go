package collector

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccessDenied means the portal answered with a login or denial page
	// instead of the listing.
	ErrAccessDenied = errors.New("access denied by errata portal")
	// ErrEmptyListing means the page carried no listing table rows.
	ErrEmptyListing = errors.New("no listing rows found")
)

type Scope struct {
	Year    int
	Product string
	Rows    int
}

const (
	DefaultProduct = "Red Hat Enterprise Linux"
	DefaultRows    = 1000
)

func (s Scope) withDefaults() Scope {
	if s.Year == 0 {
		s.Year = time.Now().Year()
	}
	if s.Product == "" {
		s.Product = DefaultProduct
	}
	if s.Rows <= 0 {
		s.Rows = DefaultRows
	}
	return s
}

type Row struct {
	ID               string
	Synopsis         string
	IssueDate        string
	Severity         string
	AffectedProducts string
	DetailURL        string
}

// static / browser 两种实现可互换
type ListingFetcher interface {
	FetchListing(ctx context.Context, scope Scope) ([]Row, error)
}
