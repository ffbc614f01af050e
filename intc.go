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

// Interrupt controller register offsets
const (
	rREVID   = 0x20000
	rCR      = 0x20004
	rGER     = 0x20010
	rGNLR    = 0x2001C
	rSISR    = 0x20020
	rSICR    = 0x20024
	rEISR    = 0x20028
	rEICR    = 0x2002C
	rHIEISR  = 0x20034
	rHIDISR  = 0x20038
	rGPIR    = 0x20080
	rSRSR0   = 0x20200
	rSRSR1   = 0x20204
	rSECR0   = 0x20280
	rSECR1   = 0x20284
	rESR0    = 0x20300
	rESR1    = 0x20304
	rECR0    = 0x20380
	rECR1    = 0x20384
	rCMRBase = 0x20400
	rHMRBase = 0x20800
	rSIPR0   = 0x20D00
	rSIPR1   = 0x20D04
	rSITR0   = 0x20D80
	rSITR1   = 0x20D84
)

// sysEvent and hostInt are kept as distinct types so that
// the two cannot be exchanged when acknowledging an event.
type sysEvent uint
type hostInt uint

// setupIntc programs the channel and host interrupt maps from the
// configuration, clears any stale events and enables the routed events.
func (p *PRU) setupIntc(pc *Config) {
	var cmr [nEvents / 4]uint32
	p.read(rCMRBase, cmr[:])
	for se, c := range pc.ev2chan {
		shift := (se % 4) * 8
		cmr[se/4] = cmr[se/4]&^(0xFF<<shift) | uint32(c)<<shift
		p.evMask |= 1 << se
	}
	var hmr [(nHostInts + 3) / 4]uint32
	p.read(rHMRBase, hmr[:])
	for c, hi := range pc.chan2hint {
		shift := (c % 4) * 8
		hmr[c/4] = hmr[c/4]&^(0xFF<<shift) | uint32(hi)<<shift
	}
	// Disable global interrupts
	p.wr(rGER, 0)
	// Clear any existing system events or interrupts.
	esr := p.rd64(rESR0)
	p.wr64(rESR0, esr&^p.evMask)
	p.wr64(rECR0, p.evMask)
	p.wr64(rSECR0, p.evMask)
	p.wr64(rSIPR0, 0xFFFFFFFFFFFFFFFF)
	p.write(cmr[:], rCMRBase)
	p.write(hmr[:], rHMRBase)
	p.wr64(rSITR0, 0)
	// Enable the system events that are used.
	p.wr64(rESR0, p.evMask|esr)
	for _, hi := range pc.chan2hint {
		p.wr(rHIEISR, uint32(hi))
	}
	p.wr(rGER, 1)
}

// teardownIntc disables and clears the system events owned by this process.
func (p *PRU) teardownIntc() {
	p.wr(rGER, 0)
	p.wr64(rESR0, p.rd64(rESR0)&^p.evMask)
	p.wr64(rSECR0, p.evMask)
	p.wr(rGER, 1)
}

// pending returns the latched system events in mask and acknowledges
// them in the status register so that a new occurrence latches again.
// The host interrupt stays disabled until it is re-armed.
func (p *PRU) pending(mask uint64) uint64 {
	events := mask & p.rd64(rSRSR0)
	if events != 0 {
		p.wr64(rSECR0, events)
	}
	return events
}

// ack clears a latched system event without delivering it.
func (p *PRU) ack(se sysEvent) {
	p.wr64(rSECR0, 1<<uint(se))
}

// rearm re-enables host interrupt hi after a delivery has been consumed.
// Any event routed to hi that latched since the delivery is kept, so
// re-enabling the host interrupt delivers it immediately.
func (p *PRU) rearm(hi hostInt) {
	p.wr(rHIEISR, uint32(hi))
}
