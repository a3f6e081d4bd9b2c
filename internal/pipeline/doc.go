// Package pipeline wires the decision core into a per-frame processing loop.
//
// Each admitted frame flows detector → lane estimator → stabilizers →
// decision machine → sinks. The core packages (lane, perception, decision,
// steering) never import this package; detectors, frame sources and sinks
// are supplied by the caller.
package pipeline
