package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel names a non-numeric ranking outcome.
type Sentinel string

const (
	SentinelNotFound Sentinel = "NOT_FOUND" // the workflow completed and the target was absent
	SentinelNoPanel  Sentinel = "NO_PANEL"  // the map results panel never rendered
	SentinelCaptcha  Sentinel = "CAPTCHA"   // an anti-automation interstitial blocked the page
	SentinelError    Sentinel = "ERROR"     // post-processing for this task failed
)

var legacySentinels = map[string]Sentinel{
	"圏外":      SentinelNotFound,
	"枠無":      SentinelNoPanel,
	"エラー":     SentinelError,
	"captcha": SentinelCaptcha,
}

// Rank is either a 1-based position or a [Sentinel]. The zero value is invalid.
type Rank struct {
	position int
	sentinel Sentinel
}

var (
	NotFound = Rank{sentinel: SentinelNotFound}
	NoPanel  = Rank{sentinel: SentinelNoPanel}
	Captcha  = Rank{sentinel: SentinelCaptcha}
	Failed   = Rank{sentinel: SentinelError}
)

// Position returns a numeric rank. Positions below 1 are invalid.
func Position(n int) Rank {
	return Rank{position: n}
}

// Int returns the position and whether r is numeric.
func (r Rank) Int() (int, bool) {
	return r.position, r.sentinel == "" && r.position > 0
}

// Sentinel returns the sentinel and whether r is one.
func (r Rank) Sentinel() (Sentinel, bool) {
	return r.sentinel, r.sentinel != ""
}

// IsPosition reports whether r is a numeric rank.
func (r Rank) IsPosition() bool {
	_, ok := r.Int()
	return ok
}

// IsZero reports whether r was never assigned.
func (r Rank) IsZero() bool {
	return r.position == 0 && r.sentinel == ""
}

func (r Rank) String() string {
	if r.sentinel != "" {
		return string(r.sentinel)
	}
	if r.position > 0 {
		return strconv.Itoa(r.position)
	}
	return ""
}

// ParseRank reads a position or sentinel, accepting legacy sentinel strings.
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "位")); err == nil {
		if n < 1 {
			return Rank{}, fmt.Errorf("rank %d out of range", n)
		}
		return Position(n), nil
	}
	switch Sentinel(strings.ToUpper(s)) {
	case SentinelNotFound, SentinelNoPanel, SentinelCaptcha, SentinelError:
		return Rank{sentinel: Sentinel(strings.ToUpper(s))}, nil
	}
	if sentinel, ok := legacySentinels[strings.ToLower(s)]; ok {
		return Rank{sentinel: sentinel}, nil
	}
	return Rank{}, fmt.Errorf("unrecognized rank %q", s)
}

// MarshalJSON writes positions as numbers and sentinels as strings.
func (r Rank) MarshalJSON() ([]byte, error) {
	if r.sentinel != "" {
		return json.Marshal(string(r.sentinel))
	}
	if r.position > 0 {
		return []byte(strconv.Itoa(r.position)), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a numeric string or a sentinel string.
func (r *Rank) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Rank{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseRank(s)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rank must be a number or string: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("rank %d out of range", n)
	}
	*r = Position(n)
	return nil
}
