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
	"github.com/aamcrae/pru-pwm"
)

// Generator data RAM layout.
const (
	genHi   = 0 // Delay loop iterations while the output is high
	genLo   = 4 // Delay loop iterations while the output is low
	genSize = 8
)

// Generator commands the pulse timing of the generator unit.
// The generator program reads both delays once per cycle. The two words are
// written separately, so a cycle may use the old high time with the new low
// time; each word on its own is never torn.
type Generator struct {
	r      *Region
	timing TimingModel
}

// NewGenerator returns a Generator using the unit data RAM m.
func NewGenerator(m pru.Memory, t TimingModel) (*Generator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	r, err := newRegion(m, genSize)
	if err != nil {
		return nil, err
	}
	return &Generator{r: r, timing: t}, nil
}

// SetPulseWidth sets the pulse width to the base width plus us microseconds.
// Widths beyond the timing model's range are rejected, leaving the
// current delays in place.
func (g *Generator) SetPulseWidth(us uint32) (PulseTicks, error) {
	pt, err := g.timing.Ticks(PulseSpec{WidthUS: us})
	if err != nil {
		return pt, err
	}
	g.r.setWord(genHi, pt.Hi)
	g.r.setWord(genLo, pt.Lo)
	return pt, nil
}

// Delays returns the delays currently in the data RAM.
func (g *Generator) Delays() PulseTicks {
	return PulseTicks{Hi: g.r.word(genHi), Lo: g.r.word(genLo)}
}

// Timing returns the timing model used to convert widths.
func (g *Generator) Timing() TimingModel {
	return g.timing
}
