// Package extract turns one group query into one [models.ExtractionResult] by driving a browser [Session].
//
// Each provider has its own [Pipeline]: paged listings for directory and feature page searches, a scrolling feed
// for the map pack, and a single large page for web search. Markup knowledge lives in the goquery extractors in
// parse.go so selector changes do not touch the pagination, termination or matching rules.
//
// Degraded pages are results, not errors: a challenge interstitial resolves to [models.Captcha] and a map panel
// that never renders resolves to [models.NoPanel]. Pipelines return errors only when no result could be produced.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// Cookie is a browser cookie set before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Session is the browser surface pipelines drive. One Session is shared by every group in a run.
type Session interface {
	// Navigate loads url and waits for the document. Timeouts wrap [shared.ErrNavigationTimeout].
	Navigate(ctx context.Context, url string) error
	// HTML returns the current document's outer HTML.
	HTML(ctx context.Context) (string, error)
	// CurrentURL returns the location after redirects.
	CurrentURL(ctx context.Context) (string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// WaitVisible blocks until selector is visible. Timeouts wrap [shared.ErrWaitTimeout].
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// ScrollToBottom scrolls the element matched by selector to its end.
	ScrollToBottom(ctx context.Context, selector string) error
	// SetGeolocation overrides the reported device position.
	SetGeolocation(ctx context.Context, at models.Coordinates, accuracy float64) error
	// SetCookie stores a cookie for subsequent requests.
	SetCookie(ctx context.Context, c Cookie) error
	// Close releases the browser.
	Close() error
}

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// StatusFunc receives human-readable progress lines from a pipeline.
type StatusFunc func(msg string)

// Query is the shared query context of one group.
type Query struct {
	Provider  models.Provider
	Keyword   string
	Location  string
	AreaName  string
	AreaCodes map[string]string
	URL       string
	// Target is set for ungrouped providers that resolve the rank themselves.
	Target string
}

// QueryFor builds the query for a group from its representative task.
func QueryFor(rep models.Task, grouped bool) Query {
	q := Query{
		Provider:  rep.Provider,
		Keyword:   rep.Keyword,
		Location:  rep.Location,
		AreaName:  rep.AreaName,
		AreaCodes: rep.AreaCodes,
		URL:       rep.URL,
	}
	switch {
	case grouped:
	case rep.Provider == models.ProviderWebSearch:
		q.Target = rep.URL
	default:
		q.Target = rep.TargetName
	}
	return q
}

// Pipeline runs the full provider workflow for one group against a shared session.
type Pipeline interface {
	Run(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error)
}

// PipelineFunc adapts a function to [Pipeline].
type PipelineFunc func(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error)

func (f PipelineFunc) Run(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error) {
	return f(ctx, s, q, status)
}

// Registry maps each provider to its pipeline.
type Registry map[models.Provider]Pipeline

// Get returns the pipeline for p.
func (r Registry) Get(p models.Provider) (Pipeline, error) {
	pl, ok := r[p]
	if !ok || pl == nil {
		return nil, fmt.Errorf("%w: no pipeline for %q", shared.ErrUnknownProvider, p)
	}
	return pl, nil
}

// PipelineError carries page diagnostics for a failed group.
type PipelineError struct {
	Err  error
	URL  string
	HTML string
}

func (e *PipelineError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%v (at %s)", e.Err, e.URL)
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// failure wraps err with whatever the session can still report about the page.
func failure(ctx context.Context, s Session, err error) error {
	pe := &PipelineError{Err: err}
	if u, uerr := s.CurrentURL(ctx); uerr == nil {
		pe.URL = u
	}
	if h, herr := s.HTML(ctx); herr == nil {
		pe.HTML = h
	}
	return pe
}

func emit(status StatusFunc, format string, args ...any) {
	if status != nil {
		status(fmt.Sprintf(format, args...))
	}
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
