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

package dmtimer

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/aamcrae/pru-pwm"
)

const devMem = "/dev/mem"

// Crystal frequencies selected by CONTROL_STATUS[23:22].
var crystalHz = [4]uint32{19200000, 24000000, 25000000, 26000000}

// Timers holds the register views of all the supported timers.
type Timers struct {
	f      *os.File
	maps   [][]byte
	prcm   pru.Memory
	ctl    pru.Memory
	timers map[ID]*View
}

// Open maps the PRCM, control module and timer register pages through /dev/mem.
// Root privileges are required.
func Open() (*Timers, error) {
	f, err := os.OpenFile(devMem, os.O_RDONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	t := &Timers{f: f}
	page := func(base uintptr) (pru.Memory, error) {
		m, err := unix.Mmap(int(f.Fd()), int64(base), pageSize, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, fmt.Errorf("%s at 0x%08x: %v", devMem, base, err)
		}
		t.maps = append(t.maps, m)
		return pru.Memory(m), nil
	}
	prcm, err := page(prcmBase)
	if err != nil {
		t.Close()
		return nil, err
	}
	ctl, err := page(controlBase)
	if err != nil {
		t.Close()
		return nil, err
	}
	regs := make(map[ID]pru.Memory)
	for _, id := range IDs() {
		if regs[id], err = page(descriptors[id].base); err != nil {
			t.Close()
			return nil, err
		}
	}
	nt, err := newTimers(prcm, ctl, regs)
	if err != nil {
		t.Close()
		return nil, err
	}
	nt.f = t.f
	nt.maps = t.maps
	return nt, nil
}

// newTimers builds the views over already mapped pages.
func newTimers(prcm, ctl pru.Memory, regs map[ID]pru.Memory) (*Timers, error) {
	if len(prcm) < pageSize || len(ctl) < controlStatus+4 {
		return nil, fmt.Errorf("clock module window too small")
	}
	t := &Timers{prcm: prcm, ctl: ctl, timers: make(map[ID]*View)}
	for id, m := range regs {
		v, err := newView(id, m, prcm)
		if err != nil {
			return nil, err
		}
		t.timers[id] = v
	}
	return t, nil
}

// Close unmaps the register pages.
func (t *Timers) Close() error {
	for _, m := range t.maps {
		unix.Munmap(m)
	}
	t.maps = nil
	t.timers = nil
	if t.f != nil {
		err := t.f.Close()
		t.f = nil
		return err
	}
	return nil
}

// Timer returns the view of one timer, or nil if it is not mapped.
func (t *Timers) Timer(id ID) *View {
	return t.timers[id]
}

// ControlStatus returns the control module's CONTROL_STATUS register.
func (t *Timers) ControlStatus() uint32 {
	return t.ctl.Load32(controlStatus)
}

// CrystalHz returns the main oscillator frequency latched at boot.
func (t *Timers) CrystalHz() uint32 {
	return crystalHz[(t.ControlStatus()>>22)&3]
}

// Rate returns the counting rate of a timer in Hz, derived from its
// clock source and prescaler, or 0 if the rate cannot be determined.
func (t *Timers) Rate(id ID) uint32 {
	v := t.Timer(id)
	if v == nil {
		return 0
	}
	var hz uint32
	switch v.Source() {
	case ClkMOsc:
		hz = t.CrystalHz()
	case Clk32KHz, ClkRC32K:
		hz = 32768
	default:
		return 0
	}
	return hz / v.Prescale()
}

// Dump writes the clock configuration and the registers of each timer.
func (t *Timers) Dump(w io.Writer) {
	fmt.Fprintf(w, "CONTROL_STATUS = 0x%08x (%d Hz crystal)\n", t.ControlStatus(), t.CrystalHz())
	fmt.Fprintf(w, "CM_PER_L4LS_CLKSTCTRL = 0x%08x\n", t.prcm.Load32(cmPerL4lsClkstctrl))
	for _, id := range IDs() {
		v := t.Timer(id)
		if v == nil {
			continue
		}
		fmt.Fprintf(w, "%s\n", id)
		fmt.Fprintf(w, "  TCLR = 0x%08x\n", v.TCLR())
		fmt.Fprintf(w, "  TCRR = 0x%08x\n", v.TCRR())
		fmt.Fprintf(w, "  TLDR = 0x%08x\n", v.TLDR())
		fmt.Fprintf(w, "  CLKCTRL = 0x%08x\n", v.ClockCtrl())
		fmt.Fprintf(w, "  CLKSEL = 0x%08x\n", v.ClockSelect())
		if v.Enabled() {
			fmt.Fprintf(w, "  %s, prescale %d, started %v, auto-reload %v\n", v.Source(), v.Prescale(), v.Started(), v.AutoReload())
		} else {
			fmt.Fprintf(w, "  disabled\n")
		}
	}
}
