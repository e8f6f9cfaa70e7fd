package extract

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// consentCookie pre-answers the cookie banner so searches land on results.
var consentCookie = Cookie{Name: "SOCS", Value: "CONSENT+PENDING+999", Domain: ".google.com", Path: "/"}

const consentHost = "consent.google.com"

// SearchPipeline ranks a site URL on one large web results page.
type SearchPipeline struct {
	Config    shared.WebSearchConfig
	Geocoder  Geocoder
	Accuracy  float64
	Settle    time.Duration
	Parse     SearchExtractor
	Snapshots *Snapshotter
	Logger    *log.Logger
}

// NewWebSearchPipeline returns the web search pipeline. geo may be nil when no task sets a location.
func NewWebSearchPipeline(cfg shared.WebSearchConfig, geo Geocoder, accuracy float64, settle time.Duration, snaps *Snapshotter, logger *log.Logger) *SearchPipeline {
	return &SearchPipeline{
		Config:    cfg,
		Geocoder:  geo,
		Accuracy:  accuracy,
		Settle:    settle,
		Parse:     ParseSearchResults,
		Snapshots: snaps,
		Logger:    logger,
	}
}

func (p *SearchPipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// SearchURL builds the results URL for keyword.
func SearchURL(cfg shared.WebSearchConfig, keyword string) (string, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: web search base url: %v", shared.ErrInvalidConfig, err)
	}
	num := cfg.PageSize
	if num <= 0 {
		num = 100
	}
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("hl", "ja")
	params.Set("num", strconv.Itoa(num))
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func homeURL(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

// Run implements [Pipeline].
func (p *SearchPipeline) Run(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error) {
	parse := p.Parse
	if parse == nil {
		parse = ParseSearchResults
	}

	if q.Location != "" {
		if _, err := geolocate(ctx, s, p.Geocoder, q.Location, p.Accuracy, status); err != nil {
			return nil, err
		}
	}

	target, err := SearchURL(p.Config, q.Keyword)
	if err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(target)

	emit(status, "Accepting cookie policy...")
	if err := s.Navigate(ctx, homeURL(parsed)); err != nil {
		return nil, failure(ctx, s, err)
	}
	if err := s.SetCookie(ctx, consentCookie); err != nil {
		return nil, failure(ctx, s, fmt.Errorf("failed to set consent cookie: %w", err))
	}

	emit(status, "Searching for %q...", q.Keyword)
	if err := s.Navigate(ctx, target); err != nil {
		return nil, failure(ctx, s, err)
	}
	if err := pause(ctx, p.Settle); err != nil {
		return nil, err
	}

	current, err := s.CurrentURL(ctx)
	if err != nil {
		return nil, failure(ctx, s, err)
	}
	if strings.Contains(current, consentHost) {
		return nil, failure(ctx, s, fmt.Errorf("%w: redirected to %s", shared.ErrConsentRequired, current))
	}

	res := &models.ExtractionResult{Rank: models.NotFound, PageURL: current}
	emit(status, "Taking screenshot...")
	if path, err := p.Snapshots.Capture(ctx, s, "seo", q.Keyword); err != nil {
		p.logger().Warn("screenshot failed", "error", err)
	} else {
		res.Screenshot = path
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return nil, failure(ctx, s, err)
	}
	res.PageHTML = html
	if DetectChallenge(html, current) {
		emit(status, "Challenge page detected")
		res.Rank = models.Captcha
		return res, nil
	}

	items, err := parse(html)
	if err != nil {
		return nil, &PipelineError{Err: err, URL: current, HTML: html}
	}
	for i, item := range items {
		res.Listings = append(res.Listings, models.Listing{Rank: i + 1, Label: item.Title, URL: item.URL})
	}
	res.TotalCount = len(res.Listings)
	res.Rank = MatchURL(res.Listings, q.Target)
	return res, nil
}

// MatchURL returns the rank of the first listing whose normalized URL contains the normalized target.
func MatchURL(listings []models.Listing, target string) models.Rank {
	needle := models.NormalizeURL(target)
	if needle == "" {
		return models.NotFound
	}
	for _, l := range listings {
		if strings.Contains(models.NormalizeURL(l.URL), needle) {
			return models.Position(l.Rank)
		}
	}
	return models.NotFound
}
