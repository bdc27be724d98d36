// Package runner runs the suites of a registry one after another, streams
// their output to an optional live feed, and writes per-run artifacts.
package runner
