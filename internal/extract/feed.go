package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// FeedPipeline ranks entities in the scrolling map results feed.
//
// The feed may not render at all; that resolves to [models.NoPanel] unless the page is a challenge. A challenge
// on the first pass is [models.Captcha]; one served while scrolling keeps the listings collected so far.
type FeedPipeline struct {
	Config    shared.MapPackConfig
	Geocoder  Geocoder
	Accuracy  float64
	Parse     FeedExtractor
	Snapshots *Snapshotter
	Logger    *log.Logger
}

// NewMapPackPipeline returns the map pack pipeline.
func NewMapPackPipeline(cfg shared.MapPackConfig, geo Geocoder, accuracy float64, snaps *Snapshotter, logger *log.Logger) *FeedPipeline {
	return &FeedPipeline{
		Config:    cfg,
		Geocoder:  geo,
		Accuracy:  accuracy,
		Parse:     ParseFeed,
		Snapshots: snaps,
		Logger:    logger,
	}
}

func (p *FeedPipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// MapSearchURL builds the map search URL centred on at.
func MapSearchURL(cfg shared.MapPackConfig, keyword string, at models.Coordinates) string {
	zoom := cfg.Zoom
	if zoom <= 0 {
		zoom = 15
	}
	return fmt.Sprintf("%s%s/@%s,%s,%dz?hl=ja&gl=JP",
		strings.TrimRight(cfg.BaseURL, "/")+"/",
		url.PathEscape(keyword),
		strconv.FormatFloat(at.Lat, 'f', -1, 64),
		strconv.FormatFloat(at.Lng, 'f', -1, 64),
		zoom,
	)
}

// Run implements [Pipeline].
func (p *FeedPipeline) Run(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error) {
	if p.Geocoder == nil {
		return nil, fmt.Errorf("%w: map pack searches need an API key", shared.ErrGeocoderNotConfigured)
	}
	parse := p.Parse
	if parse == nil {
		parse = ParseFeed
	}

	at, err := geolocate(ctx, s, p.Geocoder, q.Location, p.Accuracy, status)
	if err != nil {
		return nil, err
	}

	emit(status, "Searching maps for %q...", q.Keyword)
	if err := s.Navigate(ctx, MapSearchURL(p.Config, q.Keyword, at)); err != nil {
		return nil, failure(ctx, s, err)
	}

	res := &models.ExtractionResult{Rank: models.NotFound}
	if err := s.WaitVisible(ctx, FeedSelector, p.Config.PanelTimeout.Duration); err != nil {
		if !errors.Is(err, shared.ErrWaitTimeout) {
			return nil, failure(ctx, s, err)
		}
		html, _ := s.HTML(ctx)
		current, _ := s.CurrentURL(ctx)
		res.PageURL, res.PageHTML = current, html
		if DetectChallenge(html, current) {
			emit(status, "Challenge page detected")
			res.Rank = models.Captcha
		} else {
			p.logger().Info("map results panel did not render", "keyword", q.Keyword, "location", q.Location)
			res.Rank = models.NoPanel
		}
		res.Screenshot = p.capture(ctx, s, q, status)
		return res, nil
	}

	res.Screenshot = p.capture(ctx, s, q, status)

	seen := make(map[string]struct{})
	iterations := p.Config.ScrollIterations
	if iterations <= 0 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		emit(status, "Parsing results... (%d/%d)", i+1, iterations)
		html, err := s.HTML(ctx)
		if err != nil {
			return nil, failure(ctx, s, err)
		}
		current, _ := s.CurrentURL(ctx)
		if DetectChallenge(html, current) {
			if i == 0 {
				emit(status, "Challenge page detected")
				res.Rank = models.Captcha
				res.PageURL, res.PageHTML = current, html
				return res, nil
			}
			p.logger().Warn("challenge page while scrolling, keeping partial results", "iteration", i+1)
			break
		}
		items, err := parse(html)
		if err != nil {
			return nil, &PipelineError{Err: err, HTML: html}
		}
		for _, item := range items {
			if _, dup := seen[item.Label]; dup {
				continue
			}
			seen[item.Label] = struct{}{}
			res.Listings = append(res.Listings, models.Listing{Rank: len(res.Listings) + 1, Label: item.Label, URL: item.URL})
		}

		if err := s.ScrollToBottom(ctx, FeedSelector); err != nil {
			p.logger().Warn("scroll failed, stopping", "iteration", i+1, "error", err)
			break
		}
		if err := pause(ctx, p.Config.ScrollPause.Duration); err != nil {
			return nil, err
		}
	}

	res.TotalCount = len(res.Listings)
	res.PageURL, _ = s.CurrentURL(ctx)
	res.PageHTML, _ = s.HTML(ctx)
	if q.Target != "" {
		res.Rank = res.ResolveTarget(q.Target)
	}
	return res, nil
}

func (p *FeedPipeline) capture(ctx context.Context, s Session, q Query, status StatusFunc) string {
	emit(status, "Taking screenshot...")
	path, err := p.Snapshots.Capture(ctx, s, q.Location, q.Keyword)
	if err != nil {
		p.logger().Warn("screenshot failed", "error", err)
		return ""
	}
	return path
}
