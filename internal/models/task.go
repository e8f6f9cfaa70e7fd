package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Task is one tracked ranking target.
type Task struct {
	ID         string            `json:"id" yaml:"id"`
	Provider   Provider          `json:"provider" yaml:"provider"`
	Keyword    string            `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	TargetName string            `json:"target_name,omitempty" yaml:"target_name,omitempty"`
	Location   string            `json:"location,omitempty" yaml:"location,omitempty"`
	AreaName   string            `json:"area_name,omitempty" yaml:"area_name,omitempty"`
	AreaCodes  map[string]string `json:"area_codes,omitempty" yaml:"area_codes,omitempty"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
}

// ValidationError lists every problem found in a task.
type ValidationError struct {
	TaskID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %q: %s", e.TaskID, strings.Join(e.Problems, "; "))
}

// Validate checks the fields each provider requires.
func (t Task) Validate() error {
	var problems []string
	require := func(v, field string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, field+" is required")
		}
	}

	require(t.ID, "id")
	switch t.Provider {
	case ProviderDirectory:
		require(t.Keyword, "keyword")
		require(t.TargetName, "target_name")
	case ProviderFeaturePage:
		require(t.URL, "url")
		require(t.TargetName, "target_name")
	case ProviderMapPack:
		require(t.Keyword, "keyword")
		require(t.Location, "location")
		require(t.TargetName, "target_name")
	case ProviderWebSearch:
		require(t.Keyword, "keyword")
		require(t.URL, "url")
	case "":
		problems = append(problems, "provider is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", t.Provider))
	}

	if len(problems) > 0 {
		return &ValidationError{TaskID: t.ID, Problems: problems}
	}
	return nil
}

// DisplayName renders the task the way progress and result events label it.
func (t Task) DisplayName() string {
	switch t.Provider {
	case ProviderDirectory:
		return fmt.Sprintf("[%s] %s", t.AreaName, t.Keyword)
	case ProviderFeaturePage:
		return fmt.Sprintf("[%s] %s", t.TargetName, t.PageLabel())
	case ProviderMapPack:
		return fmt.Sprintf("[%s] [%s] %s", t.TargetName, t.Location, t.Keyword)
	case ProviderWebSearch:
		return fmt.Sprintf("[%s] %s", t.URL, t.Keyword)
	default:
		return t.ID
	}
}

// PageLabel is the discovered title of a feature page or its URL.
func (t Task) PageLabel() string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}

var pageSuffix = regexp.MustCompile(`PN\d+/?$`)

// NormalizePageURL strips a trailing page marker and guarantees a trailing slash.
func NormalizePageURL(raw string) string {
	u := pageSuffix.ReplaceAllString(strings.TrimSpace(raw), "")
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// legacyTask mirrors the camelCase task files written by older installations.
type legacyTask struct {
	Type            string            `json:"type"`
	ServiceKeyword  string            `json:"serviceKeyword"`
	SalonName       string            `json:"salonName"`
	SearchLocation  string            `json:"searchLocation"`
	AreaNameLegacy  string            `json:"areaName"`
	AreaCodesLegacy map[string]string `json:"areaCodes"`
	FeaturePageURL  string            `json:"featurePageUrl"`
	FeaturePageName string            `json:"featurePageName"`
}

// UnmarshalJSON accepts both the current schema and the legacy camelCase schema.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var current plain
	if err := json.Unmarshal(data, &current); err != nil {
		return err
	}
	var legacy legacyTask
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	if current.Provider == "" {
		name := legacy.Type
		if name == "" {
			name = "normal"
		}
		p, err := ParseProvider(name)
		if err != nil {
			return err
		}
		current.Provider = p
	}
	current.Keyword = firstNonEmpty(current.Keyword, legacy.ServiceKeyword)
	current.TargetName = firstNonEmpty(current.TargetName, legacy.SalonName)
	current.Location = firstNonEmpty(current.Location, legacy.SearchLocation)
	current.AreaName = firstNonEmpty(current.AreaName, legacy.AreaNameLegacy)
	current.URL = firstNonEmpty(current.URL, legacy.FeaturePageURL)
	current.Title = firstNonEmpty(current.Title, legacy.FeaturePageName)
	if current.AreaCodes == nil {
		current.AreaCodes = legacy.AreaCodesLegacy
	}
	if current.AreaName == "" && current.AreaCodes != nil {
		current.AreaName = current.AreaCodes["areaName"]
	}

	*t = Task(current)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
