package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// PagedPipeline walks a numbered result listing page by page.
//
// It stops at MaxPages, when a page has no labels, when a later page reports a current page lower than the one
// requested, or when a later page has no pagination indicator. A navigation timeout keeps what was collected.
type PagedPipeline struct {
	BuildURL func(q Query, page int) (string, error)
	// Warmup runs once before the first page. Its errors are logged and ignored.
	Warmup func(ctx context.Context, s Session, q Query) error
	// Label names the page-one screenshot.
	Label func(q Query, pd PageData) (area, keyword string)

	Parse     PageExtractor
	MaxPages  int
	PageSize  int
	Settle    time.Duration
	Snapshots *Snapshotter
	Logger    *log.Logger
}

func (p *PagedPipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// Run implements [Pipeline].
func (p *PagedPipeline) Run(ctx context.Context, s Session, q Query, status StatusFunc) (*models.ExtractionResult, error) {
	parse := p.Parse
	if parse == nil {
		parse = ParseListingPage
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	if p.Warmup != nil {
		emit(status, "Initializing session...")
		if err := p.Warmup(ctx, s, q); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger().Warn("warmup navigation failed", "provider", q.Provider, "error", err)
		}
	}

	res := &models.ExtractionResult{Rank: models.NotFound}
	for page := 1; page <= p.MaxPages; page++ {
		target, err := p.BuildURL(q, page)
		if err != nil {
			return nil, err
		}

		emit(status, "Searching page %d...", page)
		if err := s.Navigate(ctx, target); err != nil {
			if errors.Is(err, shared.ErrNavigationTimeout) {
				p.logger().Warn("page load timed out, keeping partial results", "page", page, "url", target)
				break
			}
			return nil, failure(ctx, s, err)
		}
		if err := pause(ctx, p.Settle); err != nil {
			return nil, err
		}

		html, err := s.HTML(ctx)
		if err != nil {
			return nil, failure(ctx, s, err)
		}
		current, _ := s.CurrentURL(ctx)
		res.PageURL, res.PageHTML = current, html

		pd, err := parse(html, current)
		if err != nil {
			return nil, &PipelineError{Err: err, URL: current, HTML: html}
		}

		if pd.Challenge {
			if page == 1 {
				emit(status, "Challenge page detected")
				res.Rank = models.Captcha
				res.Screenshot = p.capture(ctx, s, q, pd, status)
				return res, nil
			}
			p.logger().Warn("challenge page after first page, keeping partial results", "page", page)
			break
		}

		if page > 1 {
			if !pd.HasPagination {
				p.logger().Debug("no pagination indicator, end of listing", "page", page)
				break
			}
			if pd.CurrentPage > 0 && pd.CurrentPage < page {
				p.logger().Debug("pagination stuck, end of listing", "requested", page, "current", pd.CurrentPage)
				break
			}
		}

		if page == 1 {
			res.PageTitle = pd.Title
			res.TotalCount = pd.TotalCount
			res.Screenshot = p.capture(ctx, s, q, pd, status)
		}

		if len(pd.Labels) == 0 {
			break
		}
		for i, label := range pd.Labels {
			res.Listings = append(res.Listings, models.Listing{Rank: (page-1)*pageSize + i + 1, Label: label})
		}
	}

	if q.Target != "" {
		res.Rank = res.ResolveTarget(q.Target)
	}
	return res, nil
}

func (p *PagedPipeline) capture(ctx context.Context, s Session, q Query, pd PageData, status StatusFunc) string {
	area, keyword := q.AreaName, q.Keyword
	if p.Label != nil {
		area, keyword = p.Label(q, pd)
	}
	emit(status, "Taking screenshot...")
	path, err := p.Snapshots.Capture(ctx, s, area, keyword)
	if err != nil {
		p.logger().Warn("screenshot failed", "error", err)
		return ""
	}
	return path
}

// DirectoryURL builds the directory search URL for one page.
//
// Only area code keys ending in "Cd" are sent; display fields stored alongside them are not query parameters.
func DirectoryURL(cfg shared.DirectoryConfig, q Query, page int) (string, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: directory base url: %v", shared.ErrInvalidConfig, err)
	}

	params := url.Values{}
	params.Set("freeword", q.Keyword)
	params.Set("searchT", "検索")
	if cfg.GenreAlias != "" {
		params.Set("genreAlias", cfg.GenreAlias)
	}
	keys := make([]string, 0, len(q.AreaCodes))
	for k := range q.AreaCodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(k, "Cd") && q.AreaCodes[k] != "" {
			params.Set(k, q.AreaCodes[k])
		}
	}
	params.Set("pn", strconv.Itoa(page))

	base.RawQuery = params.Encode()
	return base.String(), nil
}

// DirectoryReferer is the area landing page visited before searching.
func DirectoryReferer(cfg shared.DirectoryConfig, codes map[string]string) string {
	ref := strings.TrimRight(cfg.RefererURL, "/") + "/"
	svc, mac := codes["serviceAreaCd"], codes["middleAreaCd"]
	switch {
	case svc != "" && mac != "":
		return fmt.Sprintf("%ssvc%s/mac%s/", ref, svc, mac)
	case svc != "":
		return fmt.Sprintf("%ssvc%s/", ref, svc)
	default:
		return ref
	}
}

// FeaturePageURL builds the URL of one page of a feature listing.
func FeaturePageURL(q Query, page int) (string, error) {
	if q.URL == "" {
		return "", fmt.Errorf("%w: feature page url is empty", shared.ErrInvalidTask)
	}
	base := models.NormalizePageURL(q.URL)
	if page == 1 {
		return base, nil
	}
	return fmt.Sprintf("%sPN%d/", base, page), nil
}

// NewDirectoryPipeline returns the directory search pipeline.
func NewDirectoryPipeline(cfg shared.DirectoryConfig, snaps *Snapshotter, settle time.Duration, logger *log.Logger) *PagedPipeline {
	return &PagedPipeline{
		BuildURL: func(q Query, page int) (string, error) { return DirectoryURL(cfg, q, page) },
		Warmup: func(ctx context.Context, s Session, q Query) error {
			if err := s.Navigate(ctx, DirectoryReferer(cfg, q.AreaCodes)); err != nil {
				return err
			}
			return pause(ctx, settle)
		},
		Label: func(q Query, _ PageData) (string, string) {
			area := q.AreaName
			if area == "" {
				area = q.AreaCodes["areaName"]
			}
			return area, q.Keyword
		},
		Parse:     ParseListingPage,
		MaxPages:  cfg.MaxPages,
		PageSize:  cfg.PageSize,
		Settle:    settle,
		Snapshots: snaps,
		Logger:    logger,
	}
}

// NewFeaturePagePipeline returns the feature page pipeline. It is grouped by URL.
func NewFeaturePagePipeline(cfg shared.FeaturePageConfig, snaps *Snapshotter, settle time.Duration, logger *log.Logger) *PagedPipeline {
	return &PagedPipeline{
		BuildURL: FeaturePageURL,
		Label: func(_ Query, pd PageData) (string, string) {
			return "special", shared.Truncate(pd.Title, 30)
		},
		Parse:     ParseListingPage,
		MaxPages:  cfg.MaxPages,
		PageSize:  cfg.PageSize,
		Settle:    settle,
		Snapshots: snaps,
		Logger:    logger,
	}
}
