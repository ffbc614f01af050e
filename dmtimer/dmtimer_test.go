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
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aamcrae/pru-pwm"
)

// fakeTimers builds views over plain memory, with DMTIMER2 set up the way
// the BeagleBone boots: running from the 24 MHz oscillator with auto-reload.
func fakeTimers(t *testing.T) (*Timers, map[ID]pru.Memory, pru.Memory) {
	t.Helper()
	prcm := make(pru.Memory, pageSize)
	ctl := make(pru.Memory, pageSize)
	ctl.Store32(controlStatus, 1<<22)
	regs := make(map[ID]pru.Memory)
	for _, id := range IDs() {
		regs[id] = make(pru.Memory, pageSize)
	}
	prcm.Store32(0x80, moduleModeEnable)
	prcm.Store32(cmDpll+0x08, uint32(ClkMOsc))
	regs[Timer2].Store32(rTCLR, tclrST|tclrAR)
	regs[Timer2].Store32(rTLDR, 0)
	tm, err := newTimers(prcm, ctl, regs)
	if err != nil {
		t.Fatal(err)
	}
	return tm, regs, prcm
}

func TestDescriptors(t *testing.T) {
	tests := []struct {
		id      ID
		base    uintptr
		clkctrl int
		clksel  int
	}{
		{Timer0, 0x44E05000, 0x410, -1},
		{Timer2, 0x48040000, 0x80, 0x508},
		{Timer5, 0x48046000, 0xEC, 0x518},
		{Timer7, 0x4804A000, 0x7C, 0x504},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			d := descriptors[tt.id]
			if d.base != tt.base || d.clkctrl != tt.clkctrl || d.clksel != tt.clksel {
				t.Errorf("descriptor = %+v", d)
			}
		})
	}
	if _, ok := ID(1).Base(); ok {
		t.Errorf("DMTIMER1 has a descriptor")
	}
}

func TestView(t *testing.T) {
	tm, regs, prcm := fakeTimers(t)
	v := tm.Timer(Timer2)
	if v == nil {
		t.Fatal("no view of DMTIMER2")
	}
	if !v.Enabled() || !v.Started() || !v.AutoReload() {
		t.Errorf("enabled %v started %v auto-reload %v", v.Enabled(), v.Started(), v.AutoReload())
	}
	if v.Source() != ClkMOsc || v.Prescale() != 1 {
		t.Errorf("source %s prescale %d", v.Source(), v.Prescale())
	}
	if hz := tm.Rate(Timer2); hz != 24000000 {
		t.Errorf("Rate() = %d", hz)
	}
	// Registers are read on each access.
	regs[Timer2].Store32(rTCRR, 0x1234)
	if v.TCRR() != 0x1234 {
		t.Errorf("TCRR() = 0x%x", v.TCRR())
	}
	regs[Timer2].Store32(rTCLR, tclrST|tclrPRE|(3<<tclrPTVShift))
	if v.Prescale() != 16 || v.AutoReload() {
		t.Errorf("prescale %d auto-reload %v", v.Prescale(), v.AutoReload())
	}
	if hz := tm.Rate(Timer2); hz != 1500000 {
		t.Errorf("prescaled Rate() = %d", hz)
	}
	prcm.Store32(0x80, moduleModeEnable|(3<<idleStShift))
	if v.Enabled() {
		t.Errorf("idle module reported enabled")
	}
	t0 := tm.Timer(Timer0)
	if t0.Source() != ClkRC32K || t0.ClockSelect() != 0 {
		t.Errorf("Timer0 source %s", t0.Source())
	}
}

func TestCrystal(t *testing.T) {
	tm, _, _ := fakeTimers(t)
	for i, want := range []uint32{19200000, 24000000, 25000000, 26000000} {
		tm.ctl.Store32(controlStatus, uint32(i)<<22|0x55)
		if got := tm.CrystalHz(); got != want {
			t.Errorf("CONTROL_STATUS %d: CrystalHz() = %d, want %d", i, got, want)
		}
	}
}

func TestDump(t *testing.T) {
	tm, regs, _ := fakeTimers(t)
	regs[Timer2].Store32(rTCRR, 0xdeadbeef)
	var b bytes.Buffer
	tm.Dump(&b)
	out := b.String()
	for _, s := range []string{
		"CONTROL_STATUS = 0x00400000 (24000000 Hz crystal)",
		"DMTIMER2\n  TCLR = 0x00000003\n  TCRR = 0xdeadbeef\n",
		"CLK_M_OSC, prescale 1, started true, auto-reload true",
		"DMTIMER7\n",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("dump does not contain %q:\n%s", s, out)
		}
	}
}

type fakeCounter struct {
	mu   sync.Mutex
	vals []uint32
}

func (c *fakeCounter) TCRR() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.vals[0]
	c.vals = c.vals[1:]
	return v
}

func TestCalibrate(t *testing.T) {
	c := &fakeCounter{vals: []uint32{0xFFFFFF00, 0x100}}
	cal, err := Calibrate(context.Background(), c, 0, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if cal.Ticks() != 0x200 {
		t.Errorf("Ticks() = 0x%x, want 0x200", cal.Ticks())
	}
	if cal.Elapsed < 10*time.Millisecond {
		t.Errorf("Elapsed = %v", cal.Elapsed)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = &fakeCounter{vals: []uint32{0, 0}}
	if _, err := Calibrate(ctx, c, 0, time.Hour); err != context.Canceled {
		t.Errorf("Calibrate() = %v, want context.Canceled", err)
	}
}

func TestCalibrationHz(t *testing.T) {
	tests := []struct {
		name string
		cal  Calibration
		hz   float64
	}{
		{"one second", Calibration{Start: 100, End: 24000100, Elapsed: time.Second}, 24000000},
		{"wrapped with reload", Calibration{Start: 0xFFFFF000, End: 0x2000, Reload: 0x1000, Elapsed: time.Second / 4}, 0x2000 * 4},
		{"no time", Calibration{Start: 1, End: 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cal.Hz(); got != tt.hz {
				t.Errorf("Hz() = %v, want %v", got, tt.hz)
			}
		})
	}
}
