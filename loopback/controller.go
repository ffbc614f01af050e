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
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aamcrae/pru-pwm"
)

// Unit is the lifecycle control of one PRU core, as provided by *pru.Unit.
type Unit interface {
	Reset()
	Load(image []byte) error
	Enable() error
	Disable()
	State() pru.State
}

// Completion is the sampler's completion event, as provided by *pru.Event.
type Completion interface {
	WaitContext(ctx context.Context) (uint64, error)
	Clear() error
	Reset() error
}

// Core is a unit together with its data RAM.
type Core struct {
	Unit Unit
	Ram  pru.Memory
}

// SetupError reports the step at which setting up a run failed.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Wiring selects the units and the completion event used for a run.
type Wiring struct {
	Generator int // Generator unit number
	Sampler   int // Sampler unit number
	Event     int // System event raised by the sampler
}

// DefaultWiring generates on PRU0, samples on PRU1, and completes
// through system event 19 on EVTOUT1.
var DefaultWiring = Wiring{Generator: 0, Sampler: 1, Event: 19}

// Config returns the PRU configuration for the wiring.
// The completion event is routed through channel EvtOut1 to host interrupt EvtOut1.
func (w Wiring) Config() *pru.Config {
	return pru.NewConfig().
		EnableUnit(w.Generator).
		EnableUnit(w.Sampler).
		Route(w.Event, pru.EvtOut1, pru.EvtOut1)
}

// Signal returns the sampler's completion signal for the wiring.
func (w Wiring) Signal() uint8 {
	return uint8(pru.EventCode(w.Event))
}

// Controller sequences the generator and sampler units through a run.
type Controller struct {
	gen  Core
	smp  Core
	done Completion
	log  *log.Logger
}

// NewController creates a Controller. A nil logger discards messages.
func NewController(gen, smp Core, done Completion, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Controller{gen: gen, smp: smp, done: done, log: logger}
}

// Attach creates a Controller for the units and event of an opened PRU.
func Attach(p *pru.PRU, w Wiring, logger *log.Logger) (*Controller, error) {
	if w.Generator == w.Sampler {
		return nil, fmt.Errorf("generator and sampler must be different units")
	}
	var cores [2]Core
	for i, u := range []int{w.Generator, w.Sampler} {
		un := p.Unit(u)
		if un == nil {
			return nil, fmt.Errorf("unit %d not enabled", u)
		}
		ram, err := p.Memory(u, pru.DataRAM)
		if err != nil {
			return nil, err
		}
		cores[i] = Core{Unit: un, Ram: ram}
	}
	e := p.Event(w.Event)
	if e == nil {
		return nil, fmt.Errorf("event %d not configured", w.Event)
	}
	return NewController(cores[0], cores[1], e, logger), nil
}

// Start resets and loads both units, sets the initial pulse width, configures
// the sampler, and then enables both units.
// On failure both units are reset.
func (c *Controller) Start(gp, sp Program, sc SamplerConfig, initialUS uint32) (*Run, error) {
	fail := func(step string, err error) (*Run, error) {
		c.gen.Unit.Reset()
		c.smp.Unit.Reset()
		c.log.Printf("setup failed: %s: %v", step, err)
		return nil, &SetupError{Step: step, Err: err}
	}
	if err := gp.Validate(GeneratorABI); err != nil {
		return fail("generator program", err)
	}
	if gp.Timing == nil {
		return fail("generator program", fmt.Errorf("%s: no timing model: %w", gp.Name, ErrIncompatible))
	}
	if err := sp.Validate(SamplerABI); err != nil {
		return fail("sampler program", err)
	}
	c.gen.Unit.Reset()
	c.smp.Unit.Reset()
	if err := c.gen.Unit.Load(gp.Image); err != nil {
		return fail("load generator", err)
	}
	if err := c.smp.Unit.Load(sp.Image); err != nil {
		return fail("load sampler", err)
	}
	gen, err := NewGenerator(c.gen.Ram, *gp.Timing)
	if err != nil {
		return fail("generator region", err)
	}
	if _, err := gen.SetPulseWidth(initialUS); err != nil {
		return fail("initial pulse width", err)
	}
	smp, err := NewSampler(c.smp.Ram)
	if err != nil {
		return fail("sampler region", err)
	}
	if err := smp.Configure(sc); err != nil {
		return fail("configure sampler", err)
	}
	// Discard any completion left over from an earlier run.
	if err := c.done.Reset(); err != nil {
		return fail("reset completion", err)
	}
	if err := c.gen.Unit.Enable(); err != nil {
		return fail("enable generator", err)
	}
	if err := c.smp.Unit.Enable(); err != nil {
		return fail("enable sampler", err)
	}
	c.log.Printf("started %s %s and %s %s, %d samples", gp.Name, gp.Version, sp.Name, sp.Version, sc.Quota)
	return &Run{c: c, gen: gen, smp: smp, quota: int(sc.Quota), hz: SampleHz}, nil
}
