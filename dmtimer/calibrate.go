// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dmtimer

import (
	"context"
	"time"
)

// Counter is a free running 32 bit counter, such as a *View.
type Counter interface {
	TCRR() uint32
}

// Calibration is the result of counting over a measured interval.
type Calibration struct {
	Start   uint32
	End     uint32
	Reload  uint32
	Elapsed time.Duration
}

// Ticks returns the number of counts between Start and End, allowing for
// one overflow of the counter.
func (c Calibration) Ticks() uint32 {
	if c.End < c.Start {
		return (0xFFFFFFFF - c.Start) + 1 + (c.End - c.Reload)
	}
	return c.End - c.Start
}

// Hz returns the measured counting rate.
func (c Calibration) Hz() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Ticks()) / c.Elapsed.Seconds()
}

// Calibrate reads the counter, waits for d, and reads it again.
// reload is the value the counter restarts from after it overflows.
// d must be shorter than the counter's overflow period.
func Calibrate(ctx context.Context, c Counter, reload uint32, d time.Duration) (Calibration, error) {
	cal := Calibration{Reload: reload}
	start := time.Now()
	cal.Start = c.TCRR()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return cal, ctx.Err()
	case <-t.C:
	}
	cal.End = c.TCRR()
	cal.Elapsed = time.Since(start)
	return cal, nil
}
