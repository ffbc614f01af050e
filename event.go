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
	"fmt"
	"sync"
	"time"
)

// Event handles waiting on or receiving system events.
//
// Occurrences of the event are counted, but are not queued: if the PRU raises
// the event several times before the host waits, the next Wait returns once
// and reports the total count. The PRU is never blocked by a slow host.
//
// Each Wait must be followed by a Clear before the next Wait. Clear re-enables
// the host interrupt; until it is called the event stays latched, and a
// further Wait returns immediately with an unchanged count.
type Event struct {
	p       *PRU
	id      sysEvent
	hostInt hostInt
	notify  chan struct{} // Holds at most one pending notification
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	count   uint64 // Number of deliveries seen
	seen    uint64 // Count returned by the last Wait
	armed   bool   // Cleared since the last Wait
	stop    context.CancelFunc
	stopped chan struct{}
}

// newEvent creates and initialises an Event structure.
func newEvent(p *PRU, id sysEvent, hi hostInt) *Event {
	return &Event{
		p:       p,
		id:      id,
		hostInt: hi,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		armed:   true,
	}
}

// ID returns the system event number.
func (e *Event) ID() int {
	return int(e.id)
}

// Count returns the number of times the event has been delivered.
func (e *Event) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// SetHandler installs an asynch handler that is invoked when events are
// read from the host interrupt device. The argument is the running count
// of deliveries. The event is cleared after the handler returns.
// The handler must not call SetHandler or ClearHandler.
func (e *Event) SetHandler(f func(uint64)) {
	e.ClearHandler()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	e.mu.Lock()
	e.stop = cancel
	e.stopped = stopped
	e.mu.Unlock()
	go e.dispatcher(ctx, f, stopped)
}

// ClearHandler removes any currently installed handler for this event,
// and waits for the handler to exit.
func (e *Event) ClearHandler() {
	e.mu.Lock()
	stop, stopped := e.stop, e.stopped
	e.stop, e.stopped = nil, nil
	e.mu.Unlock()
	if stop != nil {
		stop()
		<-stopped
	}
}

// Wait blocks until the event has been delivered, and returns the
// running count of deliveries.
// This cannot be used if a handler has been installed on this event.
func (e *Event) Wait() (uint64, error) {
	return e.WaitContext(context.Background())
}

// WaitTimeout waits for the event, returning if the timeout expires.
// This cannot be used if a handler has been installed on this event e.g
//  c, ok, err := e.WaitTimeout(time.Second)
//  if ok {
//      // Event received, c is the count
//  else {
//      // Timed out
//  }
func (e *Event) WaitTimeout(tout time.Duration) (uint64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tout)
	defer cancel()
	c, err := e.WaitContext(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return c, false, nil
	}
	return c, err == nil, err
}

// WaitContext waits for the event or until the context is done.
func (e *Event) WaitContext(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	h := e.stop != nil
	e.mu.Unlock()
	if h {
		return 0, fmt.Errorf("event %d: handler registered, cannot use Wait", e.id)
	}
	return e.wait(ctx)
}

// Clear acknowledges the last delivery and re-enables the host interrupt.
func (e *Event) Clear() error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	e.mu.Lock()
	e.armed = true
	e.mu.Unlock()
	e.p.rearm(e.hostInt)
	return nil
}

// Reset discards any deliveries not yet returned by Wait, acknowledges
// the event if it is still latched, and re-enables the host interrupt.
// The count is not reset.
func (e *Event) Reset() error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	e.mu.Lock()
	e.seen = e.count
	e.armed = true
	select {
	case <-e.notify:
	default:
	}
	e.mu.Unlock()
	e.p.ack(e.id)
	e.p.rearm(e.hostInt)
	return nil
}

func (e *Event) wait(ctx context.Context) (uint64, error) {
	for {
		e.mu.Lock()
		if !e.armed || e.count > e.seen {
			e.seen = e.count
			e.armed = false
			c := e.count
			e.mu.Unlock()
			return c, nil
		}
		c := e.count
		e.mu.Unlock()
		select {
		case <-e.notify:
		case <-e.done:
			return c, ErrClosed
		case <-ctx.Done():
			return c, ctx.Err()
		}
	}
}

// trigger records a delivery of the event. It never blocks.
func (e *Event) trigger() {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
		// A notification is already pending.
	}
}

// dispatcher is a shim between the event and the
// external handler that will be invoked when an event is received.
func (e *Event) dispatcher(ctx context.Context, f func(uint64), stopped chan struct{}) {
	defer close(stopped)
	for {
		c, err := e.wait(ctx)
		if err != nil {
			return
		}
		f(c)
		if e.Clear() != nil {
			return
		}
	}
}

// close releases any waiters and stops the handler.
func (e *Event) close() {
	e.once.Do(func() {
		close(e.done)
	})
	e.ClearHandler()
}
