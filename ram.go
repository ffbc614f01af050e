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
	"sync/atomic"
	"unsafe"
)

// Memory is a window onto memory that is shared with the PRU cores.
// 32 bit accesses through Load32 and Store32 are single word accesses,
// so a concurrent reader on the PRU never sees a partially written word.
// Offsets passed to Load32 and Store32 must be 32 bit aligned.
type Memory []byte

// Load32 reads the 32 bit word at offset offs.
func (m Memory) Load32(offs int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m[offs:offs+4][0])))
}

// Store32 writes the 32 bit word at offset offs.
func (m Memory) Store32(offs int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m[offs:offs+4][0])), v)
}

// Fill sets n bytes starting at offs to b.
func (m Memory) Fill(offs, n int, b byte) {
	s := m[offs : offs+n]
	for i := range s {
		s[i] = b
	}
}
