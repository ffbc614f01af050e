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
	"io"
	"math/bits"
)

// signalReader polls the host interrupt device, and delivers the
// system events in mask that are latched when the device signals.
// Each read of the UIO device returns a 4 byte interrupt count; the count is
// not used since interrupts that arrive while the host interrupt is disabled
// are merged by the interrupt controller.
// The host interrupt is left disabled until the event is cleared.
func (p *PRU) signalReader(hi hostInt, mask uint64, r io.Reader) {
	b := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			// Assume device has been closed.
			return
		}
		events := p.pending(mask)
		if events == 0 {
			// Nothing latched (e.g a spurious wakeup), so re-arm now.
			p.rearm(hi)
			continue
		}
		for events != 0 {
			// Find the next event in the mask.
			fs := 63 - bits.LeadingZeros64(events)
			events &^= 1 << uint(fs)
			if e := p.events[fs]; e != nil {
				e.trigger()
			}
		}
	}
}
