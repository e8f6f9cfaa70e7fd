package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// Selectors used by the listing extractors.
const (
	listingLabelSelector = "h3.slcHead a"
	currentPageSelector  = "ul.paging span.current"
	totalCountSelector   = "span.numberOfResult"

	FeedSelector      = `div[role="feed"]`
	feedItemSelector  = `div[role="feed"] > div > div[jsaction]`
	feedLabelSelector = "a[aria-label]"
	sponsoredMarker   = "広告"

	searchResultSelector = "div.g"
)

var challengeMarkers = []string{
	"g-recaptcha",
	"お使いのコンピュータ ネットワークから通常と異なるトラフィックが検出されました",
	"unusual traffic from your computer network",
}

// DetectChallenge reports whether a page is an anti-automation interstitial.
func DetectChallenge(html, pageURL string) bool {
	if strings.Contains(pageURL, "/sorry/") {
		return true
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// PageData is what one page of a paged listing yields.
type PageData struct {
	Labels        []string
	CurrentPage   int  // 0 when the indicator is missing or unreadable
	HasPagination bool // the current-page indicator is present
	TotalCount    int
	Title         string
	Challenge     bool
}

// PageExtractor parses a paged listing page.
type PageExtractor func(html, pageURL string) (PageData, error)

// FeedExtractor parses the currently rendered feed items.
type FeedExtractor func(html string) ([]FeedItem, error)

// SearchExtractor parses organic web results in page order.
type SearchExtractor func(html string) ([]SearchItem, error)

// FeedItem is one organic feed entry.
type FeedItem struct {
	Label string
	URL   string
}

// SearchItem is one organic web result.
type SearchItem struct {
	Title string
	URL   string
}

func document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExtraction, err)
	}
	return doc, nil
}

// ParseListingPage reads salon labels, pagination state, the total count and the title.
func ParseListingPage(html, pageURL string) (PageData, error) {
	doc, err := document(html)
	if err != nil {
		return PageData{}, err
	}

	var pd PageData
	pd.Challenge = DetectChallenge(html, pageURL)
	pd.Title = strings.TrimSpace(doc.Find("title").First().Text())

	if cur := doc.Find(currentPageSelector).First(); cur.Length() > 0 {
		pd.HasPagination = true
		if n, err := strconv.Atoi(strings.TrimSpace(cur.Text())); err == nil {
			pd.CurrentPage = n
		}
	}

	if total := doc.Find(totalCountSelector).First(); total.Length() > 0 {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, total.Text())
		if n, err := strconv.Atoi(digits); err == nil {
			pd.TotalCount = n
		}
	}

	doc.Find(listingLabelSelector).Each(func(_ int, s *goquery.Selection) {
		pd.Labels = append(pd.Labels, strings.TrimSpace(s.Text()))
	})
	return pd, nil
}

// ParseFeed reads organic map feed entries, skipping sponsored blocks.
func ParseFeed(html string) ([]FeedItem, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	var items []FeedItem
	doc.Find(feedItemSelector).Each(func(_ int, block *goquery.Selection) {
		sponsored := block.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), sponsoredMarker)
		})
		if sponsored.Length() > 0 {
			return
		}
		link := block.Find(feedLabelSelector).First()
		label := strings.TrimSpace(link.AttrOr("aria-label", ""))
		if label == "" {
			return
		}
		items = append(items, FeedItem{Label: label, URL: link.AttrOr("href", "")})
	})
	return items, nil
}

// ParseSearchResults reads organic result blocks that carry both a link and a heading.
func ParseSearchResults(html string) ([]SearchItem, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	var items []SearchItem
	doc.Find(searchResultSelector).Each(func(_ int, block *goquery.Selection) {
		link := block.Find("a[href]").First()
		heading := block.Find("h3").First()
		if link.Length() == 0 || heading.Length() == 0 {
			return
		}
		items = append(items, SearchItem{
			Title: strings.TrimSpace(heading.Text()),
			URL:   link.AttrOr("href", ""),
		})
	})
	return items, nil
}
