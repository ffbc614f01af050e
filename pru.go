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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device paths.
const (
	drvMemBase = "/sys/class/uio/uio0/maps/map0/addr"
	drvMemSize = "/sys/class/uio/uio0/maps/map0/size"
	drvUioBase = "/dev/uio%d"
	drvUIO0    = "/dev/uio0"
)

// versions
const (
	am18xx = iota
	am33xx = iota
)

const (
	// AM3xx
	// Memory offsets
	am3xxPru0Ram   = 0x00000000
	am3xxPru1Ram   = 0x00002000
	am3xxSharedRam = 0x00010000
	am3xxIntc      = 0x00020000
	am3xxPru0Ctl   = 0x00022000
	am3xxPru0Dbg   = 0x00022400
	am3xxPru1Ctl   = 0x00024000
	am3xxPru1Dbg   = 0x00024400
	am3xxPru0Iram  = 0x00034000
	am3xxPru1Iram  = 0x00038000

	// Memory sizes
	am3xxRamSize       = 8 * 1024
	am3xxSharedRamSize = 12 * 1024
	am3xxIRamSize      = 8 * 1024

	// Lowest address that must be mapped to reach every region above.
	am3xxMapSize = am3xxPru1Iram + am3xxIRamSize
)

// ErrClosed is returned when waiting on an event after the PRU has been closed.
var ErrClosed = errors.New("pru: device closed")

// MemClass selects one of the memory regions of a unit.
type MemClass int

const (
	DataRAM MemClass = iota
	InstructionRAM
	SharedRAM
)

func (c MemClass) String() string {
	switch c {
	case DataRAM:
		return "data RAM"
	case InstructionRAM:
		return "instruction RAM"
	case SharedRAM:
		return "shared RAM"
	}
	return fmt.Sprintf("MemClass(%d)", int(c))
}

type PRU struct {
	mmapFile *os.File
	memBase  int
	memSize  int
	mem      []byte
	version  int
	units    [nUnits]*Unit
	signals  []io.Closer
	events   [nEvents]*Event
	sigMask  [nSignals]uint64 // System event mask for each signal
	evMask   uint64           // Global mask for system events

	SharedRam Memory           // Shared RAM byte array
	Order     binary.ByteOrder // encoding/binary Order for reading/writing.
}

// Single instance of PRU.
var (
	openMu sync.Mutex
	opened *PRU
)

// Open initialises the PRU subsystem using the configuration provided.
func Open(pc *Config) (*PRU, error) {
	openMu.Lock()
	defer openMu.Unlock()
	if opened != nil {
		return nil, fmt.Errorf("Device already open; must close it first")
	}
	memBase, err := readDriverValue(drvMemBase)
	if err != nil {
		return nil, err
	}
	memSize, err := readDriverValue(drvMemSize)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(drvUIO0, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, memSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %v", drvUIO0, err)
	}
	p, err := newPRU(mem, pc)
	if err != nil {
		unix.Munmap(mem)
		f.Close()
		return nil, err
	}
	p.mmapFile = f
	p.memBase = memBase
	// Open signal devices for each enabled host interrupt (the first 2 are skipped).
	for i := 0; i < nSignals; i++ {
		if p.sigMask[i] != 0 {
			sf, err := os.OpenFile(fmt.Sprintf(drvUioBase, i), os.O_RDWR|os.O_SYNC, 0660)
			if err != nil {
				p.Close()
				return nil, err
			}
			p.signals = append(p.signals, sf)
			go p.signalReader(signal2HostInt(i), p.sigMask[i], sf)
		}
	}
	opened = p
	return p, nil
}

// newPRU sets up the PRU using the mapped memory.
func newPRU(mem []byte, pc *Config) (*PRU, error) {
	if len(mem) < am3xxMapSize {
		return nil, fmt.Errorf("PRU memory map too small (%d bytes)", len(mem))
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	p := &PRU{mem: mem, memSize: len(mem)}
	// Determine PRU version (AM18xx or AM33xx)
	vers := p.rd(rREVID)
	switch vers {
	case 0x00a9824e:
		p.Order = binary.BigEndian
		p.version = am33xx
	case 0x4E82A900:
		p.Order = binary.LittleEndian
		p.version = am33xx
	default:
		return nil, fmt.Errorf("Unknown PRU version: 0x%08x", vers)
	}
	p.SharedRam = Memory(p.mem[am3xxSharedRam : am3xxSharedRam+am3xxSharedRamSize])
	for _, se := range pc.events() {
		hi, _ := pc.hostInt(se)
		if hi >= 2 {
			p.sigMask[hostInt2Signal(int(hi))] |= 1 << se
		}
		p.events[se] = newEvent(p, sysEvent(se), hi)
	}
	if (pc.umask & 1) != 0 {
		p.units[0] = newUnit(p, 0, am3xxPru0Ram, am3xxPru0Iram, am3xxPru0Ctl)
	}
	if (pc.umask & 2) != 0 {
		p.units[1] = newUnit(p, 1, am3xxPru1Ram, am3xxPru1Iram, am3xxPru1Ctl)
	}
	p.setupIntc(pc)
	return p, nil
}

// Unit returns a structure pointer representing a single PRU Core,
// or nil if the unit was not enabled in the configuration.
func (p *PRU) Unit(u int) *Unit {
	if u < 0 || u >= nUnits {
		return nil
	}
	return p.units[u]
}

// Event returns the Event identified by id, or nil if the
// event is not part of the configuration.
func (p *PRU) Event(id int) *Event {
	if id < 0 || id >= nEvents {
		return nil
	}
	return p.events[id]
}

// Memory returns the memory window of the class requested for unit u.
// The window is only valid until the PRU is closed.
func (p *PRU) Memory(u int, class MemClass) (Memory, error) {
	if class == SharedRAM {
		return p.SharedRam, nil
	}
	un := p.Unit(u)
	if un == nil {
		return nil, fmt.Errorf("unit %d not enabled", u)
	}
	switch class {
	case DataRAM:
		return un.Ram, nil
	case InstructionRAM:
		return un.iram, nil
	}
	return nil, fmt.Errorf("unit %d: unknown memory class %v", u, class)
}

// SendEvent triggers a system event. Note that the system event
// may not need to be part of the configuration.
func (p *PRU) SendEvent(se uint) {
	p.wr64(rSRSR0, 1<<se)
}

// ClearEvent acknowledges the system event, and re-enables the associated host interrupt.
func (p *PRU) ClearEvent(se uint) error {
	e := p.Event(int(se))
	if e == nil {
		return fmt.Errorf("Event %d not configured", se)
	}
	return e.Clear()
}

// Close deactivates the PRU subsystem, releasing all the resources associated with it.
func (p *PRU) Close() {
	for _, u := range p.units {
		if u != nil {
			u.Reset()
		}
	}
	p.teardownIntc()
	for _, s := range p.signals {
		s.Close()
	}
	for _, e := range p.events {
		if e != nil {
			e.close()
		}
	}
	if p.mmapFile != nil {
		unix.Munmap(p.mem)
		p.mmapFile.Close()
		openMu.Lock()
		if opened == p {
			opened = nil
		}
		openMu.Unlock()
	}
}

// Description returns a human readable string describing the PRU
func (p *PRU) Description() string {
	var s strings.Builder
	fmt.Fprint(&s, "PRU")
	if p.version == am33xx {
		fmt.Fprint(&s, " AM33xx")
	} else {
		fmt.Fprint(&s, " AM18xx")
	}
	if p.Order == binary.LittleEndian {
		fmt.Fprint(&s, " Little endian")
	} else {
		fmt.Fprint(&s, " Big endian")
	}
	if p.memBase != 0 {
		fmt.Fprintf(&s, " at 0x%08x", p.memBase)
	}
	return s.String()
}

// rd reads one 32 bit word from the shared memory area
func (p *PRU) rd(offs uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&p.mem[offs])))
}

// wr writes one 32 bit word to the shared memory area
func (p *PRU) wr(offs uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&p.mem[offs])), v)
}

// rd64 reads 2 32 bits words from successive addresses and combines them to a 64 bit value
// The lower 32 bit of the 64 bit word is read from the first address
func (p *PRU) rd64(offs uintptr) uint64 {
	v := uint64(p.rd(offs))
	v |= uint64(p.rd(offs+4)) << 32
	return v
}

// wr64 writes a 64 bit value to 2 successive addresses
// The lower 32 bits of the 64 bit word is written to the first address
func (p *PRU) wr64(offs uintptr, v uint64) {
	p.wr(offs, uint32(v))
	p.wr(offs+4, uint32(v>>32))
}

// write copies the 32 bit data to the shared memory area
func (p *PRU) write(src []uint32, dst uintptr) {
	for _, c := range src {
		p.wr(dst, c)
		dst += 4
	}
}

// read copies the shared memory area to the 32 bit slice
func (p *PRU) read(src uintptr, dst []uint32) {
	for i := range dst {
		dst[i] = p.rd(src)
		src += 4
	}
}

// hostInt2Signal - convert host interrupt index to signal index
func hostInt2Signal(hi int) int {
	return hi - 2
}

// signal2HostInt - convert signal index to host interrupt number
func signal2HostInt(sig int) hostInt {
	return hostInt(sig + 2)
}

// readDriverValue opens and reads a string from a device file and decodes
// the string as an integer. This is used to retrieve device specific
// parameters from the PRU kernel device driver.
func readDriverValue(s string) (int, error) {
	var val int
	f, err := os.Open(s)
	if err != nil {
		return -1, err
	}
	defer f.Close()
	n, err := fmt.Fscanf(f, "%v", &val)
	if err != nil {
		return -1, fmt.Errorf("%s: %v", s, err)
	}
	if n != 1 {
		return -1, fmt.Errorf("%s: no value found", s)
	}
	return val, nil
}

// The PRU cores execute one instruction per cycle at 200 MHz.
const (
	ClockHz             = 200000000
	TicksPerMicrosecond = ClockHz / 1000000
)

// Return the number of instruction cycles for the duration specified.
func Ticks(d time.Duration) int {
	return int(d.Nanoseconds() * TicksPerMicrosecond / 1000)
}

// Return the number of instruction cycles for the microseconds specified.
func MicroSeconds2Ticks(m int) int {
	return m * TicksPerMicrosecond
}

// Duration converts instruction cycles to time.Duration
func Duration(ticks int) time.Duration {
	return time.Nanosecond * time.Duration(ticks) * 1000 / TicksPerMicrosecond
}
