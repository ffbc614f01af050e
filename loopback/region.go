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
	"fmt"

	"github.com/aamcrae/pru-pwm"
)

// Region is the part of a unit's data RAM used by one layout.
// Words are read and written as single 32 bit accesses in host byte order,
// which is also the PRU byte order on the AM335x.
type Region struct {
	mem pru.Memory
}

func newRegion(m pru.Memory, size int) (*Region, error) {
	if len(m) < size {
		return nil, fmt.Errorf("region needs %d bytes, memory is %d bytes", size, len(m))
	}
	return &Region{mem: m[:size]}, nil
}

func (r *Region) word(offs int) uint32 {
	return r.mem.Load32(offs)
}

func (r *Region) setWord(offs int, v uint32) {
	r.mem.Store32(offs, v)
}

func (r *Region) byteAt(offs int) uint8 {
	return r.mem[offs]
}

func (r *Region) setByte(offs int, v uint8) {
	r.mem[offs] = v
}

func (r *Region) fill(b byte) {
	r.mem.Fill(0, len(r.mem), b)
}

// Size returns the size of the region in bytes.
func (r *Region) Size() int {
	return len(r.mem)
}
