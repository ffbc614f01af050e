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

// Package dmtimer provides a read-only view of the AM335x DMTIMER
// registers and their clock configuration.
//
// The loopback sampler reads DMTIMER2's counter to timestamp pulse edges,
// so the rate and reload value of that counter determine how samples
// convert to time. Every accessor reads the hardware register when it is
// called; nothing is cached, since the timers are shared with the kernel.
package dmtimer

import (
	"fmt"

	"github.com/aamcrae/pru-pwm"
)

// ID identifies a timer. DMTIMER1 is the 1ms timer, which has a
// different register layout and is not supported.
type ID int

const (
	Timer0 ID = 0
	Timer2 ID = 2
	Timer3 ID = 3
	Timer4 ID = 4
	Timer5 ID = 5
	Timer6 ID = 6
	Timer7 ID = 7
)

func (id ID) String() string {
	return fmt.Sprintf("DMTIMER%d", int(id))
}

// Physical addresses.
const (
	prcmBase    = 0x44E00000 // CM_PER, CM_WKUP and CM_DPLL
	controlBase = 0x44E10000 // Control module
	pageSize    = 0x1000

	cmWkup = 0x400 // CM_WKUP offset in the PRCM page
	cmDpll = 0x500 // CM_DPLL offset in the PRCM page

	cmPerL4lsClkstctrl = 0x00
	controlStatus      = 0x40
)

// Timer register offsets.
const (
	rTIDR         = 0x00
	rTIOCPCfg     = 0x10
	rIRQEOI       = 0x20
	rIRQSTATUSRaw = 0x24
	rIRQSTATUS    = 0x28
	rIRQENABLESet = 0x2C
	rIRQENABLEClr = 0x30
	rIRQWAKEEN    = 0x34
	rTCLR         = 0x38
	rTCRR         = 0x3C
	rTLDR         = 0x40
	rTTGR         = 0x44
	rTWPS         = 0x48
	rTMAR         = 0x4C
	rTCAR1        = 0x50
	rTSICR        = 0x54
	rTCAR2        = 0x58
)

// TCLR bits.
const (
	tclrST       = 1 << 0
	tclrAR       = 1 << 1
	tclrPTVShift = 2
	tclrPTVMask  = 7 << tclrPTVShift
	tclrPRE      = 1 << 5
)

// Clock control fields.
const (
	moduleModeMask   = 3
	moduleModeEnable = 2
	idleStShift      = 16
	idleStMask       = 3 << idleStShift
	clkselMask       = 3
)

// Source is the functional clock input of a timer.
type Source uint32

const (
	TCLKIN   Source = 0
	ClkMOsc  Source = 1 // CLK_M_OSC, the main oscillator
	Clk32KHz Source = 2
	// Timer0 runs from the internal 32KHz RC oscillator and has no selector.
	ClkRC32K Source = 0xFF
)

func (s Source) String() string {
	switch s {
	case TCLKIN:
		return "TCLKIN"
	case ClkMOsc:
		return "CLK_M_OSC"
	case Clk32KHz:
		return "CLK_32KHZ"
	case ClkRC32K:
		return "CLK_RC32K"
	}
	return fmt.Sprintf("Source(%d)", uint32(s))
}

// descriptor locates a timer and its clock registers.
type descriptor struct {
	base    uintptr
	clkctrl int // Clock control offset in the PRCM page
	clksel  int // Clock select offset in the PRCM page, or -1
}

var descriptors = map[ID]descriptor{
	Timer0: {0x44E05000, cmWkup + 0x10, -1},
	Timer2: {0x48040000, 0x80, cmDpll + 0x08},
	Timer3: {0x48042000, 0x84, cmDpll + 0x0C},
	Timer4: {0x48044000, 0x88, cmDpll + 0x10},
	Timer5: {0x48046000, 0xEC, cmDpll + 0x18},
	Timer6: {0x48048000, 0xF0, cmDpll + 0x1C},
	Timer7: {0x4804A000, 0x7C, cmDpll + 0x04},
}

// IDs returns the supported timers in order.
func IDs() []ID {
	return []ID{Timer0, Timer2, Timer3, Timer4, Timer5, Timer6, Timer7}
}

// Base returns the physical address of the timer's registers.
func (id ID) Base() (uintptr, bool) {
	d, ok := descriptors[id]
	return d.base, ok
}

// View reads the registers of one timer.
type View struct {
	id   ID
	d    descriptor
	regs pru.Memory
	prcm pru.Memory
}

func newView(id ID, regs, prcm pru.Memory) (*View, error) {
	d, ok := descriptors[id]
	if !ok {
		return nil, fmt.Errorf("%s: no such timer", id)
	}
	if len(regs) < rTCAR2+4 {
		return nil, fmt.Errorf("%s: register window too small", id)
	}
	return &View{id: id, d: d, regs: regs, prcm: prcm}, nil
}

// ID returns the timer's identity.
func (v *View) ID() ID {
	return v.id
}

// TIDR returns the timer identification register.
func (v *View) TIDR() uint32 {
	return v.regs.Load32(rTIDR)
}

// TCLR returns the timer control register.
func (v *View) TCLR() uint32 {
	return v.regs.Load32(rTCLR)
}

// TCRR returns the current counter value.
func (v *View) TCRR() uint32 {
	return v.regs.Load32(rTCRR)
}

// TLDR returns the value loaded into the counter when it overflows.
func (v *View) TLDR() uint32 {
	return v.regs.Load32(rTLDR)
}

// TTGR returns the trigger register.
func (v *View) TTGR() uint32 {
	return v.regs.Load32(rTTGR)
}

// ClockCtrl returns the timer's CM_PER (or CM_WKUP) clock control register.
func (v *View) ClockCtrl() uint32 {
	return v.prcm.Load32(v.d.clkctrl)
}

// ClockSelect returns the timer's CM_DPLL clock select register,
// or 0 for Timer0.
func (v *View) ClockSelect() uint32 {
	if v.d.clksel < 0 {
		return 0
	}
	return v.prcm.Load32(v.d.clksel)
}

// Source returns the selected functional clock.
func (v *View) Source() Source {
	if v.d.clksel < 0 {
		return ClkRC32K
	}
	return Source(v.ClockSelect() & clkselMask)
}

// Enabled returns true if the module clock is enabled and the module is functional.
func (v *View) Enabled() bool {
	c := v.ClockCtrl()
	return c&moduleModeMask == moduleModeEnable && c&idleStMask == 0
}

// Started returns true if the counter is running.
func (v *View) Started() bool {
	return v.TCLR()&tclrST != 0
}

// AutoReload returns true if the counter reloads from TLDR on overflow.
func (v *View) AutoReload() bool {
	return v.TCLR()&tclrAR != 0
}

// Prescale returns the divider applied to the functional clock.
func (v *View) Prescale() uint32 {
	c := v.TCLR()
	if c&tclrPRE == 0 {
		return 1
	}
	return 2 << ((c & tclrPTVMask) >> tclrPTVShift)
}

// Reload returns the value the counter restarts from after overflowing,
// which is 0 unless auto-reload is set.
func (v *View) Reload() uint32 {
	if !v.AutoReload() {
		return 0
	}
	return v.TLDR()
}
