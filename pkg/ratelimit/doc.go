// Package ratelimit provides the two time-based gates of the pipeline:
// a Debouncer for edit events and a Throttler for render requests.
//
// Actions scheduled by a timer run on the timer's goroutine. Callers that need
// a single thread of control should have the action post into their own loop.
package ratelimit
