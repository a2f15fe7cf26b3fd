// Package testutil holds shared timeouts and helpers for tests.
package testutil

import "time"

// Constants for timing out operations. Timeouts need headroom for the race
// detector and busy CI runners, which is why they look generous.
const (
	WaitShort  = 10 * time.Second
	WaitMedium = 15 * time.Second
	WaitLong   = 25 * time.Second
)

// Constants for polling intervals in require.Eventually loops.
const (
	IntervalFast   = 25 * time.Millisecond
	IntervalMedium = 250 * time.Millisecond
	IntervalSlow   = time.Second
)
