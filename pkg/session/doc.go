/*
Package session wires the evaluation pipeline for one document.

An Orchestrator consumes the document's edit stream, rate-limits it, builds
evaluation requests, drives the interpreter and renders its outcomes. All of
that state is owned by a single event-loop goroutine; timers and public
methods post closures into the loop instead of touching it.

A Manager keeps one Orchestrator per document for hosts that track several.
*/
package session
