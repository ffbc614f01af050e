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
	"errors"
	"fmt"

	"github.com/aamcrae/pru-pwm"
)

// MaxSamples is the number of sample slots in the sampler's data RAM.
const MaxSamples = 200

// Sentinel is written to every byte of the sampler region before it is
// configured, so that slots not written by the sampler are recognisable.
const Sentinel = 0x99

// Sampler data RAM layout.
const (
	smpPinSource = 0 // u32: GPIO bank base address
	smpPinBit    = 4 // u8: GPIO bit within the bank
	smpSignal    = 5 // u8: R31 value used to raise the completion event
	smpQuota     = 6 // u8: samples to record before completing
	smpSamples   = 8 // samples[MaxSamples]{start, end int32}
	sampleSize   = 8
	smpSize      = smpSamples + MaxSamples*sampleSize
)

// GPIO bank base addresses.
const (
	GPIO0 = 0x44E07000
	GPIO1 = 0x4804C000
	GPIO2 = 0x481AC000
	GPIO3 = 0x481AE000
)

var ErrQuota = errors.New("loopback: invalid sample quota")

// SamplerConfig selects the pin to sample, the event to raise on completion,
// and the number of pulses to record.
type SamplerConfig struct {
	PinSource uint32 // GPIO bank base
	PinBit    uint8
	Signal    uint8 // See pru.EventCode
	Quota     uint8
}

// Validate checks the configuration.
func (c SamplerConfig) Validate() error {
	switch c.PinSource {
	case GPIO0, GPIO1, GPIO2, GPIO3:
	default:
		return fmt.Errorf("sampler: 0x%08x is not a GPIO bank", c.PinSource)
	}
	if c.PinBit > 31 {
		return fmt.Errorf("sampler: pin bit %d out of range", c.PinBit)
	}
	if c.Signal&0x20 == 0 {
		return fmt.Errorf("sampler: signal 0x%02x does not raise an event", c.Signal)
	}
	if c.Quota == 0 || int(c.Quota) > MaxSamples {
		return fmt.Errorf("sampler: %d samples (max %d): %w", c.Quota, MaxSamples, ErrQuota)
	}
	return nil
}

// Sampler sets up the sampler unit's data RAM and reads back its samples.
type Sampler struct {
	r *Region
}

// NewSampler returns a Sampler using the unit data RAM m.
func NewSampler(m pru.Memory) (*Sampler, error) {
	r, err := newRegion(m, smpSize)
	if err != nil {
		return nil, err
	}
	return &Sampler{r: r}, nil
}

// Configure fills the region with the sentinel and writes the configuration.
// It must be called before the sampler unit is enabled.
func (s *Sampler) Configure(c SamplerConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.r.fill(Sentinel)
	s.r.setWord(smpPinSource, c.PinSource)
	s.r.setByte(smpPinBit, c.PinBit)
	s.r.setByte(smpSignal, c.Signal)
	s.r.setByte(smpQuota, c.Quota)
	return nil
}

// Config reads back the configuration.
func (s *Sampler) Config() SamplerConfig {
	return SamplerConfig{
		PinSource: s.r.word(smpPinSource),
		PinBit:    s.r.byteAt(smpPinBit),
		Signal:    s.r.byteAt(smpSignal),
		Quota:     s.r.byteAt(smpQuota),
	}
}

// readSamples returns the first quota samples in the order written.
// The result is only meaningful once the sampler has raised its completion event.
func (s *Sampler) readSamples(quota int) []Sample {
	if quota > MaxSamples {
		quota = MaxSamples
	}
	samples := make([]Sample, quota)
	for i := range samples {
		offs := smpSamples + i*sampleSize
		samples[i] = Sample{
			Start: int32(s.r.word(offs)),
			End:   int32(s.r.word(offs + 4)),
		}
	}
	return samples
}
