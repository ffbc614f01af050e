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
	"errors"
	"fmt"
	"os"
	"sync"
)

// Control register bits.
const (
	ctlSoftResetN = 1 << 0
	ctlEnable     = 1 << 1
	ctlRunState   = 1 << 15
)

var (
	ErrNotLoaded    = errors.New("pru: no program loaded")
	ErrRunning      = errors.New("pru: unit is running")
	ErrLoadMismatch = errors.New("pru: program load incomplete")
	ErrUnaligned    = errors.New("pru: program length is not 32 bit aligned")
)

// State is the lifecycle state of a unit.
type State int

const (
	Unloaded State = iota
	Loaded
	Running
	Disabled
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Unit represents one PRU (core) of the PRU-ICSS subsystem
type Unit struct {
	p      *PRU
	id     int
	iram   Memory
	ctlReg uintptr

	mu    sync.Mutex
	state State

	// Exported fields
	Ram Memory
}

// newUnit initialises the unit's fields
func newUnit(p *PRU, id int, ram, iram, ctl uintptr) *Unit {
	u := new(Unit)
	u.p = p
	u.id = id
	u.ctlReg = ctl
	u.Ram = Memory(p.mem[ram : ram+am3xxRamSize])
	u.iram = Memory(p.mem[iram : iram+am3xxIRamSize])
	return u
}

// ID returns the unit number.
func (u *Unit) ID() int {
	return u.id
}

// State returns the lifecycle state of the unit.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Reset resets the PRU. Any loaded program is treated as discarded.
func (u *Unit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.p.wr(u.ctlReg, 0)
	u.state = Unloaded
}

// Disable halts the PRU. Disabling an idle or halted unit has no effect.
func (u *Unit) Disable() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.p.wr(u.ctlReg, ctlSoftResetN)
	if u.state == Loaded || u.state == Running {
		u.state = Disabled
	}
}

// Enable enables the PRU
func (u *Unit) Enable() error {
	return u.EnableAt(0)
}

// EnableAt enables the PRU and sets the starting execution address.
// The address is specified as the instruction word, not the byte offset i.e a value
// of 10 will begin execution at the 10th instruction word (byte offset of 40 in the IRAM).
// The PRU begins executing immediately, so its data RAM must already be set up.
func (u *Unit) EnableAt(addr uint) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case Unloaded:
		return fmt.Errorf("unit %d: %w", u.id, ErrNotLoaded)
	case Running:
		return nil
	}
	u.p.wr(u.ctlReg, (uint32(addr)<<16)|ctlEnable)
	u.state = Running
	return nil
}

// IsRunning returns true if the PRU is enabled and running.
func (u *Unit) IsRunning() bool {
	return (u.p.rd(u.ctlReg) & ctlRunState) != 0
}

// WriteProgram copies the program image into the IRAM at the byte offset given,
// and returns the number of 32 bit words written.
func (u *Unit) WriteProgram(offs uint, image []byte) (int, error) {
	if int(offs)%4 != 0 {
		return 0, fmt.Errorf("unit %d: IRAM offset 0x%x: %w", u.id, offs, ErrUnaligned)
	}
	if int(offs) >= len(u.iram) {
		return 0, fmt.Errorf("unit %d: IRAM offset 0x%x out of range", u.id, offs)
	}
	n := 0
	for i := 0; i+4 <= len(image) && int(offs)+i < len(u.iram); i += 4 {
		u.iram.Store32(int(offs)+i, u.p.Order.Uint32(image[i:]))
		n++
	}
	return n, nil
}

// Load copies the program into the IRAM. The unit must not be running.
func (u *Unit) Load(image []byte) error {
	return u.LoadAt(image, 0)
}

// LoadAt copies the program into the IRAM at the byte offset given.
func (u *Unit) LoadAt(image []byte, offs uint) error {
	if len(image)%4 != 0 {
		return fmt.Errorf("unit %d: %w", u.id, ErrUnaligned)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == Running {
		return fmt.Errorf("unit %d: %w", u.id, ErrRunning)
	}
	n, err := u.WriteProgram(offs, image)
	if err != nil {
		return err
	}
	if n != len(image)/4 {
		u.state = Unloaded
		return fmt.Errorf("unit %d: wrote %d of %d words: %w", u.id, n, len(image)/4, ErrLoadMismatch)
	}
	u.state = Loaded
	return nil
}

// LoadFile loads the program from the file specified.
func (u *Unit) LoadFile(s string) error {
	code, err := os.ReadFile(s)
	if err != nil {
		return err
	}
	if err := u.Load(code); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

// Load and execute the program from the file specified.
func (u *Unit) RunFile(s string) error {
	if err := u.LoadFile(s); err != nil {
		return err
	}
	return u.Enable()
}

// Run loads the PRU code into the IRAM and enables the PRU.
func (u *Unit) Run(code []byte) error {
	return u.RunAt(code, 0)
}

// RunAt loads the PRU code into the IRAM and enables the PRU to
// begin execution at the instruction address indicated.
func (u *Unit) RunAt(code []byte, addr uint) error {
	u.Disable()
	if err := u.Load(code); err != nil {
		return err
	}
	return u.EnableAt(addr)
}
