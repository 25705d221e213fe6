// Package service contains the application use cases built on top of the
// task engine. It turns validated job requests into composed digest tasks,
// registers them in the tag-keyed task queue and reports their lifecycle
// through job events.
//
// Key components:
//
// 1. JobService:
//   - Composes one digest task per URL in serial, parallel or sharded mode
//   - Enqueues the composed task under its tag and executes it on the engine
//   - Cancels jobs by tag or all at once, including their schedules
//
// 2. Scheduler:
//   - Fires recurring jobs from cron expressions
//   - Every tick runs a fresh clone of the job's template task
//
// 3. StatusRecorder:
//   - An events.EventHandler folding lifecycle events into the latest
//     JobStatus per tag, which backs the status queries
//
// 4. HistoryService:
//   - Reads archived lifecycle events of a tag from a store.EventStore
//   - Prunes events older than the retention on a cron schedule
//
// 5. Error Handling:
//   - Sentinel errors for conditions callers branch on
//   - JobServiceError wraps unexpected failures with operation context
//
// The auth subpackage issues and validates the scoped tokens guarding the
// API routes.
package service
