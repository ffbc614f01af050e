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

package loopback

import (
	"fmt"
	"io"
	"math"
	"time"
)

// SampleHz is the rate of the DMTIMER2 counter read by the sampler,
// which runs from the 24 MHz oscillator.
const SampleHz = 24000000

// Sample holds the counter values at the start and end of one pulse.
// The counter is a free running unsigned 32 bit counter.
type Sample struct {
	Start int32
	End   int32
}

// Raw returns the signed difference of the counter values.
func (s Sample) Raw() int32 {
	return s.End - s.Start
}

// Wrapped returns true if the counter overflowed during the pulse.
func (s Sample) Wrapped() bool {
	return uint32(s.End) < uint32(s.Start)
}

// Ticks returns the pulse width in counter ticks, for a counter that
// restarts from reload after it overflows.
func (s Sample) Ticks(reload uint32) uint32 {
	if s.Wrapped() {
		return (0xFFFFFFFF - uint32(s.Start)) + 1 + (uint32(s.End) - reload)
	}
	return uint32(s.End) - uint32(s.Start)
}

// Duration converts the pulse width to a time.Duration.
func (s Sample) Duration(hz, reload uint32) time.Duration {
	return time.Duration(uint64(s.Ticks(reload)) * uint64(time.Second) / uint64(hz))
}

// Micros returns the pulse width in microseconds.
func (s Sample) Micros(hz, reload uint32) float64 {
	return 1000000.0 * float64(s.Ticks(reload)) / float64(hz)
}

// Log is the sampler output of one run.
type Log struct {
	Samples []Sample
	Count   uint64 // Completion event count when the log was read
	Hz      uint32 // Counter rate
	Reload  uint32 // Counter reload value
}

// Stats summarises the pulse widths of a log, in microseconds.
type Stats struct {
	N             int
	Min, Max, Avg float64
	Wrapped       int
}

// Stats returns a summary of the pulse widths.
func (l *Log) Stats() Stats {
	st := Stats{N: len(l.Samples), Min: math.Inf(1), Max: math.Inf(-1)}
	if st.N == 0 {
		return Stats{}
	}
	var sum float64
	for _, s := range l.Samples {
		us := s.Micros(l.Hz, l.Reload)
		sum += us
		st.Min = math.Min(st.Min, us)
		st.Max = math.Max(st.Max, us)
		if s.Wrapped() {
			st.Wrapped++
		}
	}
	st.Avg = sum / float64(st.N)
	return st
}

// Report writes one line per sample: the raw counter values, the width
// in ticks and the width in microseconds.
func (l *Log) Report(w io.Writer) error {
	for _, s := range l.Samples {
		_, err := fmt.Fprintf(w, "0x%08x 0x%08x %d %9.3f\n", uint32(s.Start), uint32(s.End), s.Ticks(l.Reload), s.Micros(l.Hz, l.Reload))
		if err != nil {
			return err
		}
	}
	return nil
}
