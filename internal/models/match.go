package models

import "strings"

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsFold reports whether s contains the already-normalized needle.
func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

// MatchesTarget is the shared label-to-target rule: case-insensitive containment.
func MatchesTarget(label, target string) bool {
	needle := normalize(target)
	return needle != "" && containsFold(label, needle)
}

// NormalizeURL drops the scheme, a leading "www." and trailing slashes so URLs compare by host and path.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}
