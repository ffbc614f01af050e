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
	"errors"
	"fmt"
	"os"

	"golang.org/x/mod/semver"

	"github.com/aamcrae/pru-pwm"
)

// Major versions of the data RAM layouts understood by this package.
// A program image must carry a version with the same major version.
const (
	GeneratorABI = "v1"
	SamplerABI   = "v1"
)

var (
	ErrPulseRange   = errors.New("loopback: pulse width out of range")
	ErrIncompatible = errors.New("loopback: incompatible program")
)

// TimingModel describes how the generator program converts its delay
// counts to time. TicksPerLoop is the cost in PRU cycles of one iteration of
// the generator's delay loop, and so belongs to a specific program image.
type TimingModel struct {
	TicksPerMicrosecond uint32 // PRU clock cycles per microsecond
	TicksPerLoop        uint32 // PRU clock cycles per delay loop iteration
	BaseUS              uint32 // Pulse width for a commanded width of 0
	RangeUS             uint32 // Largest commanded width
	CycleUS             uint32 // Fixed period of the pulse train
}

// DefaultTiming is the servo timing: 1-2 ms pulses every 20 ms, with
// a delay loop of two single cycle instructions.
var DefaultTiming = TimingModel{
	TicksPerMicrosecond: pru.TicksPerMicrosecond,
	TicksPerLoop:        2,
	BaseUS:              1000,
	RangeUS:             1000,
	CycleUS:             20000,
}

// Validate checks that every commanded width converts to whole loop counts,
// so that the high and low times always add up to the cycle period.
func (t TimingModel) Validate() error {
	if t.TicksPerMicrosecond == 0 || t.TicksPerLoop == 0 {
		return fmt.Errorf("timing: zero tick rate")
	}
	if t.TicksPerMicrosecond%t.TicksPerLoop != 0 {
		return fmt.Errorf("timing: %d ticks/us is not a multiple of %d ticks/loop", t.TicksPerMicrosecond, t.TicksPerLoop)
	}
	if t.BaseUS+t.RangeUS > t.CycleUS {
		return fmt.Errorf("timing: pulse of up to %d us does not fit a %d us cycle", t.BaseUS+t.RangeUS, t.CycleUS)
	}
	if uint64(t.CycleUS)*uint64(t.TicksPerMicrosecond) > 0xFFFFFFFF {
		return fmt.Errorf("timing: cycle of %d us overflows the delay counter", t.CycleUS)
	}
	return nil
}

// PulseSpec is a commanded pulse width, in microseconds above the base width.
type PulseSpec struct {
	WidthUS uint32
}

// PulseTicks are the generator delays, in delay loop iterations.
type PulseTicks struct {
	Hi uint32
	Lo uint32
}

// Ticks converts the pulse width to generator delays.
func (t TimingModel) Ticks(p PulseSpec) (PulseTicks, error) {
	if p.WidthUS > t.RangeUS {
		return PulseTicks{}, fmt.Errorf("%d us (max %d): %w", p.WidthUS, t.RangeUS, ErrPulseRange)
	}
	hiUS := t.BaseUS + p.WidthUS
	loUS := t.CycleUS - hiUS
	return PulseTicks{
		Hi: hiUS * t.TicksPerMicrosecond / t.TicksPerLoop,
		Lo: loUS * t.TicksPerMicrosecond / t.TicksPerLoop,
	}, nil
}

// Micros converts generator delays back to microseconds.
func (t TimingModel) Micros(pt PulseTicks) (hi, lo uint32) {
	return pt.Hi * t.TicksPerLoop / t.TicksPerMicrosecond, pt.Lo * t.TicksPerLoop / t.TicksPerMicrosecond
}

// Program is a PRU program image together with the version of the data RAM
// layout it implements, and for a generator, the timing of its delay loop.
// Loading the image and its timing together keeps the host arithmetic
// in step with the program.
type Program struct {
	Name    string
	Version string // semantic version, e.g "v1.2.0"
	Image   []byte
	Timing  *TimingModel
}

// Validate checks that the program implements the layout version abi.
func (p Program) Validate(abi string) error {
	if !semver.IsValid(p.Version) {
		return fmt.Errorf("%s: invalid version %q: %w", p.Name, p.Version, ErrIncompatible)
	}
	if m := semver.Major(p.Version); m != abi {
		return fmt.Errorf("%s: version %s, need %s.x: %w", p.Name, p.Version, abi, ErrIncompatible)
	}
	if len(p.Image) == 0 || len(p.Image)%4 != 0 {
		return fmt.Errorf("%s: image length %d: %w", p.Name, len(p.Image), pru.ErrUnaligned)
	}
	if p.Timing != nil {
		if err := p.Timing.Validate(); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

// LoadProgram reads a program image from a file.
func LoadProgram(path, version string, t *TimingModel) (Program, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Program{}, err
	}
	return Program{Name: path, Version: version, Image: b, Timing: t}, nil
}
