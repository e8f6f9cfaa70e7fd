// Package repositories implements persistence for task configuration and the run journal.
//
// Key Implementations:
//   - [TaskStore] : the task list, stored as a JSON or YAML file chosen by extension
//   - [RunRepository] : SQLite journal of finished runs and their per-task results
//
// The task file is replaced atomically so readers never see a partial write. Journal rows carry a sequence
// number from [NextSequence] for stable, human-readable ordering.
package repositories
