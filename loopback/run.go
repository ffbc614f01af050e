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
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrStopped = errors.New("loopback: run stopped")

// Sweep steps the pulse width from From to To inclusive, holding each
// width for Interval, and then returns to From.
type Sweep struct {
	From     uint32
	To       uint32
	Step     uint32
	Interval time.Duration
}

// Validate checks the sweep against the timing model.
func (s Sweep) Validate(t TimingModel) error {
	if s.Step == 0 {
		return fmt.Errorf("sweep: zero step")
	}
	if s.From > s.To {
		return fmt.Errorf("sweep: from %d > to %d", s.From, s.To)
	}
	if s.To > t.RangeUS {
		return fmt.Errorf("sweep: to %d (max %d): %w", s.To, t.RangeUS, ErrPulseRange)
	}
	return nil
}

// Run is one started run of the generator and sampler.
// A Run cannot be restarted once stopped.
type Run struct {
	c     *Controller
	gen   *Generator
	smp   *Sampler
	quota int

	mu      sync.Mutex
	stopped bool
	hz      uint32
	reload  uint32
}

// SetTimebase sets the rate and reload value of the sampler's counter,
// used when converting samples. The default is SampleHz with a reload of 0.
func (r *Run) SetTimebase(hz, reload uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hz = hz
	r.reload = reload
}

// SetPulseWidth commands a new pulse width on the generator.
func (r *Run) SetPulseWidth(us uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	pt, err := r.gen.SetPulseWidth(us)
	if err != nil {
		return err
	}
	r.c.log.Printf("width %d us: hi_delay=%d lo_delay=%d", us, pt.Hi, pt.Lo)
	return nil
}

// Sweep runs the sweep until it completes or ctx is done.
func (r *Run) Sweep(ctx context.Context, s Sweep) error {
	if err := s.Validate(r.gen.Timing()); err != nil {
		return err
	}
	for w := s.From; w <= s.To; w += s.Step {
		if err := r.SetPulseWidth(w); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Interval):
		}
	}
	return r.SetPulseWidth(s.From)
}

// Wait blocks until the sampler completes or ctx is done, acknowledges
// the completion, and returns the samples.
func (r *Run) Wait(ctx context.Context) (*Log, error) {
	if r.isStopped() {
		return nil, ErrStopped
	}
	c, err := r.c.done.WaitContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.c.done.Clear(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		// The sampler may have been halted mid-write.
		return nil, ErrStopped
	}
	r.c.log.Printf("sampler completed, event count %d", c)
	return &Log{
		Samples: r.smp.readSamples(r.quota),
		Count:   c,
		Hz:      r.hz,
		Reload:  r.reload,
	}, nil
}

// Measure runs the sweep while waiting for the sampler to complete.
// The sweep is abandoned once the sampler completes. Both units are
// stopped before Measure returns.
func (r *Run) Measure(ctx context.Context, s Sweep) (*Log, error) {
	defer r.Stop()
	g, gctx := errgroup.WithContext(ctx)
	sweepCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	var lg *Log
	g.Go(func() error {
		defer cancel()
		l, err := r.Wait(gctx)
		lg = l
		return err
	})
	g.Go(func() error {
		err := r.Sweep(sweepCtx, s)
		if err != nil && sweepCtx.Err() == nil {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lg, nil
}

// Stop disables both units. Stopping a stopped run has no effect.
func (r *Run) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.c.gen.Unit.Disable()
	r.c.smp.Unit.Disable()
	r.c.log.Printf("units disabled")
}

func (r *Run) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
