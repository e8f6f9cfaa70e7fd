// Package tasks orchestrates ranking runs across providers with real-time progress reporting.
//
// # Core Operations
//
// [RankingEngine] exposes two operations:
//
//  1. [RankingEngine.Run] : measure a selection of configured tasks
//     - Resolves the selection and partitions it into groups with [GroupTasks]
//     - Opens one browser session for the whole run
//     - Runs one extraction per group and resolves every member's rank from it
//     - Upserts today's entry per member and saves the history on every exit
//
//  2. [RankingEngine.Check] : measure one ad-hoc task without writing history
//
// # Concurrency
//
// A [RunCoordinator] admits one run at a time. Both operations take it before any work and release it on
// every exit path. A rejected caller gets [shared.ErrRunInProgress] and nothing changes.
//
// # Progress Reporting
//
// Operations take an optional send-only [Event] channel and close it when they return. Sends block until the
// consumer reads or the context ends, so a slow consumer slows the run instead of losing events.
// Scheduled runs report through the logger only.
//
// # Pacing
//
// A [PacingPolicy] sets the pause between groups: a fixed short delay while someone is watching and a random
// interval for scheduled runs.
package tasks
