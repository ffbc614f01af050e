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

package pru

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEventWaitClear(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(19)
	e.trigger()
	c, err := e.Wait()
	if err != nil || c != 1 {
		t.Fatalf("Wait = %d, %v, want 1", c, err)
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	// Nothing new has arrived, so the next wait must block.
	if c, ok, err := e.WaitTimeout(20 * time.Millisecond); ok || err != nil {
		t.Errorf("WaitTimeout = %d, %v, %v, want timeout", c, ok, err)
	}
	e.trigger()
	if c, ok, _ := e.WaitTimeout(time.Second); !ok || c != 2 {
		t.Errorf("WaitTimeout = %d, %v, want 2", c, ok)
	}
}

func TestEventCoalescing(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(18)
	e.trigger()
	if _, err := e.Wait(); err != nil {
		t.Fatal(err)
	}
	// Two deliveries between the wait and the clear.
	e.trigger()
	e.trigger()
	e.Clear()
	c, ok, err := e.WaitTimeout(time.Second)
	if err != nil || !ok {
		t.Fatalf("wait after coalesced deliveries blocked: %v", err)
	}
	if c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	e.Clear()
	// Both deliveries were consumed by the single wait above.
	if _, ok, _ := e.WaitTimeout(20 * time.Millisecond); ok {
		t.Errorf("coalesced deliveries returned twice")
	}
}

func TestEventSaturation(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(18)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			e.trigger()
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger blocked without a waiter")
	}
	c, err := e.Wait()
	if err != nil || c != 10000 {
		t.Errorf("Wait = %d, %v, want 10000", c, err)
	}
}

func TestEventWaitWithoutClear(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(18)
	e.trigger()
	e.Wait()
	// Still latched: returns at once with the same count.
	c, ok, err := e.WaitTimeout(time.Second)
	if !ok || err != nil || c != 1 {
		t.Errorf("WaitTimeout = %d, %v, %v, want immediate 1", c, ok, err)
	}
}

func TestEventContext(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(18)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := e.WaitContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitContext err = %v, want canceled", err)
	}
}

func TestEventClose(t *testing.T) {
	p, err := newPRU(fakeMem(), DefaultConfig)
	if err != nil {
		t.Fatal(err)
	}
	e := p.Event(18)
	errc := make(chan error, 1)
	go func() {
		_, err := e.Wait()
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	p.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Wait err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait not released by Close")
	}
	if err := e.Clear(); !errors.Is(err, ErrClosed) {
		t.Errorf("Clear after close = %v", err)
	}
}

func TestEventHandler(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(20)
	got := make(chan uint64, 10)
	e.SetHandler(func(c uint64) {
		got <- c
	})
	if _, err := e.Wait(); err == nil {
		t.Errorf("Wait allowed while handler registered")
	}
	for i := 1; i <= 3; i++ {
		e.trigger()
		select {
		case c := <-got:
			if c != uint64(i) {
				t.Errorf("handler count = %d, want %d", c, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("handler not called for delivery %d", i)
		}
	}
	e.ClearHandler()
	e.trigger()
	if _, err := e.Wait(); err != nil {
		t.Errorf("Wait after ClearHandler: %v", err)
	}
}

func TestEventReset(t *testing.T) {
	p := newTestPRU(t, DefaultConfig)
	e := p.Event(19)
	e.trigger()
	e.trigger()
	p.wr(rHIEISR, 0)
	p.wr64(rSECR0, 0)
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := p.rd(rHIEISR); got != 3 {
		t.Errorf("HIEISR = %d, want 3", got)
	}
	// A latched event must be acknowledged before the host interrupt is enabled.
	if got := p.rd64(rSECR0); got != 1<<19 {
		t.Errorf("SECR = %#x, want %#x", got, uint64(1)<<19)
	}
	if c, ok, _ := e.WaitTimeout(20 * time.Millisecond); ok {
		t.Errorf("discarded deliveries returned by Wait (count %d)", c)
	}
	if e.Count() != 2 {
		t.Errorf("Count() = %d, want 2", e.Count())
	}
	e.trigger()
	if c, ok, _ := e.WaitTimeout(time.Second); !ok || c != 3 {
		t.Errorf("WaitTimeout = %d, %v, want 3", c, ok)
	}
}
