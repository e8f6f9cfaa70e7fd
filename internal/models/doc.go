// Package models defines the data model shared by the ranking engine, the extraction pipelines and the stores.
//
// # Tasks
//
// A [Task] is one tracked (provider, query, target) combination. Its [Provider] selects the extraction pipeline
// and decides how tasks are grouped. Tasks are validated when they are loaded and are never deleted by a run;
// the only field a run may fill in is [Task.Title], the discovered title of a feature page.
//
// # Ranks
//
// A [Rank] is either a 1-based position or one of the sentinels [NotFound], [NoPanel], [Captcha] and [Failed].
// Ranks encode to JSON as a number or a string, and decoding accepts the legacy sentinel strings written by older
// installations.
//
// # History
//
// A [HistoryRecord] holds the per-task time series. Its log holds at most one [HistoryEntry] per calendar date
// and is kept in ascending date order.
package models
