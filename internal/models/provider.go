package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifies a ranking source and its extraction pipeline.
type Provider string

const (
	ProviderDirectory   Provider = "directory"    // paged directory search, ungrouped
	ProviderFeaturePage Provider = "feature_page" // curated listing page, grouped by page URL
	ProviderMapPack     Provider = "map_pack"     // local map results, grouped by (location, keyword)
	ProviderWebSearch   Provider = "web_search"   // organic web results, ungrouped
)

// Providers lists every provider in processing order.
var Providers = []Provider{ProviderDirectory, ProviderFeaturePage, ProviderMapPack, ProviderWebSearch}

var legacyProviders = map[string]Provider{
	"normal":  ProviderDirectory,
	"special": ProviderFeaturePage,
	"google":  ProviderMapPack,
	"meo":     ProviderMapPack,
	"seo":     ProviderWebSearch,
}

// ParseProvider resolves a provider name, accepting the legacy type names.
func ParseProvider(s string) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	if p, ok := legacyProviders[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Order returns the processing position of p, or len(Providers) when p is unknown.
func (p Provider) Order() int {
	for i, known := range Providers {
		if known == p {
			return i
		}
	}
	return len(Providers)
}

// Grouped reports whether tasks of this provider share one extraction per query context.
func (p Provider) Grouped() bool {
	return p == ProviderFeaturePage || p == ProviderMapPack
}

func (p Provider) String() string { return string(p) }

// UnmarshalText implements [encoding.TextUnmarshaler] so config files may use legacy names.
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON always writes the canonical name.
func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}
