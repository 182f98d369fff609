// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import "time"

// Recorder receives auth events for metrics.
type Recorder interface {
	// ObserveOperation records the outcome of a Service operation.
	ObserveOperation(operation string, kind ErrorKind)
	// ObserveGateDecision records the outcome of a Gate authentication.
	ObserveGateDecision(kind ErrorKind)
	// ObserveHash records the duration of a password hash or verify call.
	ObserveHash(operation string, d time.Duration)
	// ObserveEmail records an email side effect result.
	ObserveEmail(kind string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, ErrorKind) {}
func (nopRecorder) ObserveGateDecision(ErrorKind)      {}
func (nopRecorder) ObserveHash(string, time.Duration)  {}
func (nopRecorder) ObserveEmail(string, bool)          {}
