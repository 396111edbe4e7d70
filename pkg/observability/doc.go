/*
Package observability exposes Prometheus metrics for the evaluation pipeline.

All Metrics methods are safe to call on a nil receiver, so components can take
an optional *Metrics without guarding every call site.
*/
package observability
