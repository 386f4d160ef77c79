// Package bulk implements bulk operations against a Ditto instance:
// collecting thing ids through the cursor-paginated search endpoint,
// fanning out one operation per id under a hard concurrency ceiling, and
// re-attempting the failed subset in bounded retry rounds.
//
// The id set is collected once at the start of a run and treated as a
// fixed work queue. Things created or deleted concurrently with the run
// are not observed.
package bulk
