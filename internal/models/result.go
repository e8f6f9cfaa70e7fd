package models

// Listing is one entity found on a results page.
type Listing struct {
	Rank  int    `json:"rank"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// ExtractionResult is what a pipeline returns for one group.
//
// Rank is set for ungrouped providers and whenever the whole page resolved to a sentinel.
// Listings carries every found entity for grouped providers, in rank order.
type ExtractionResult struct {
	Rank       Rank      `json:"rank"`
	TotalCount int       `json:"total_count,omitempty"`
	Screenshot string    `json:"screenshot_path,omitempty"`
	PageURL    string    `json:"url,omitempty"`
	PageHTML   string    `json:"html,omitempty"`
	PageTitle  string    `json:"page_title,omitempty"`
	Listings   []Listing `json:"results,omitempty"`
}

// ResolveTarget finds the first listing whose label contains target, case-insensitively.
func (r *ExtractionResult) ResolveTarget(target string) Rank {
	if sentinel, ok := r.Rank.Sentinel(); ok && sentinel != SentinelNotFound {
		return r.Rank
	}
	needle := normalize(target)
	if needle == "" {
		return NotFound
	}
	for _, l := range r.Listings {
		if containsFold(l.Label, needle) {
			return Position(l.Rank)
		}
	}
	return NotFound
}

// Coordinates is a geocoded point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
