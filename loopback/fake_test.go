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
	"sync"

	"github.com/aamcrae/pru-pwm"
)

// journal records unit operations across both fake units, in order.
type journal struct {
	mu  sync.Mutex
	ops []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ops...)
}

// fakeUnit follows the same state transitions as pru.Unit.
type fakeUnit struct {
	name     string
	j        *journal
	loadErr  error
	onEnable func()

	mu    sync.Mutex
	state pru.State
	image []byte
}

func (u *fakeUnit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.j.add("%s reset", u.name)
	u.state = pru.Unloaded
}

func (u *fakeUnit) Load(image []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.j.add("%s load", u.name)
	if u.loadErr != nil {
		return u.loadErr
	}
	if u.state == pru.Running {
		return pru.ErrRunning
	}
	u.image = image
	u.state = pru.Loaded
	return nil
}

func (u *fakeUnit) Enable() error {
	u.mu.Lock()
	if u.state == pru.Unloaded {
		u.mu.Unlock()
		return pru.ErrNotLoaded
	}
	u.j.add("%s enable", u.name)
	u.state = pru.Running
	f := u.onEnable
	u.mu.Unlock()
	if f != nil {
		f()
	}
	return nil
}

func (u *fakeUnit) Disable() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.j.add("%s disable", u.name)
	if u.state == pru.Loaded || u.state == pru.Running {
		u.state = pru.Disabled
	}
}

func (u *fakeUnit) State() pru.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// fakeCompletion counts triggers and coalesces notifications like pru.Event.
type fakeCompletion struct {
	notify chan struct{}

	mu     sync.Mutex
	count  uint64
	seen   uint64
	armed  bool
	clears int
}

func newFakeCompletion() *fakeCompletion {
	return &fakeCompletion{notify: make(chan struct{}, 1), armed: true}
}

func (f *fakeCompletion) trigger() {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *fakeCompletion) WaitContext(ctx context.Context) (uint64, error) {
	for {
		f.mu.Lock()
		if !f.armed || f.count > f.seen {
			f.seen = f.count
			f.armed = false
			c := f.count
			f.mu.Unlock()
			return c, nil
		}
		f.mu.Unlock()
		select {
		case <-f.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (f *fakeCompletion) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.clears++
	return nil
}

func (f *fakeCompletion) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = f.count
	f.armed = true
	select {
	case <-f.notify:
	default:
	}
	return nil
}

// rig is a controller over fake units with 8K data RAMs.
type rig struct {
	j      *journal
	gen    *fakeUnit
	smp    *fakeUnit
	genRam pru.Memory
	smpRam pru.Memory
	done   *fakeCompletion
	c      *Controller
}

func newRig() *rig {
	r := &rig{
		j:      &journal{},
		genRam: make(pru.Memory, 8192),
		smpRam: make(pru.Memory, 8192),
		done:   newFakeCompletion(),
	}
	r.gen = &fakeUnit{name: "gen", j: r.j}
	r.smp = &fakeUnit{name: "smp", j: r.j}
	r.c = NewController(Core{r.gen, r.genRam}, Core{r.smp, r.smpRam}, r.done, nil)
	return r
}

// simulateSampler writes quota samples as a sampler program would, then
// raises the completion event. written is updated after each sample.
func (r *rig) simulateSampler(pulse func(i int) (start, end uint32), written *writeCounter) {
	quota := int(r.smpRam[smpQuota])
	go func() {
		for i := 0; i < quota; i++ {
			start, end := pulse(i)
			offs := smpSamples + i*sampleSize
			r.smpRam.Store32(offs, start)
			r.smpRam.Store32(offs+4, end)
			written.inc()
		}
		r.done.trigger()
	}()
}

type writeCounter struct {
	mu sync.Mutex
	n  int
}

func (c *writeCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *writeCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

var (
	testGenProg = Program{Name: "pwm.bin", Version: "v1.0.0", Image: make([]byte, 64), Timing: &DefaultTiming}
	testSmpProg = Program{Name: "logpulses.bin", Version: "v1.1.0", Image: make([]byte, 128)}
	testSmpCfg  = SamplerConfig{PinSource: GPIO1, PinBit: 16, Signal: DefaultWiring.Signal(), Quota: 20}
)
