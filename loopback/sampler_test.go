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
	"testing"

	"github.com/aamcrae/pru-pwm"
)

func TestSamplerLayout(t *testing.T) {
	m := make(pru.Memory, 8192)
	s, err := NewSampler(m)
	if err != nil {
		t.Fatal(err)
	}
	cfg := SamplerConfig{PinSource: GPIO1, PinBit: 16, Signal: 0x23, Quota: 200}
	if err := s.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := m.Load32(0); got != GPIO1 {
		t.Errorf("pin source = 0x%08x", got)
	}
	if m[4] != 16 || m[5] != 0x23 || m[6] != 200 {
		t.Errorf("config bytes = % x", m[4:7])
	}
	if m[7] != Sentinel || m[smpSize-1] != Sentinel {
		t.Errorf("region not filled with sentinel")
	}
	if m[smpSize] != 0 {
		t.Errorf("fill went past the region")
	}
	if got := s.Config(); got != cfg {
		t.Errorf("Config() = %+v, want %+v", got, cfg)
	}
}

func TestSamplerSentinel(t *testing.T) {
	m := make(pru.Memory, 8192)
	s, _ := NewSampler(m)
	// Stale data from a previous run.
	for i := 0; i < smpSize; i += 4 {
		m.Store32(i, 0x12345678)
	}
	if err := s.Configure(testSmpCfg); err != nil {
		t.Fatal(err)
	}
	samples := s.readSamples(int(testSmpCfg.Quota))
	if len(samples) != int(testSmpCfg.Quota) {
		t.Fatalf("got %d samples", len(samples))
	}
	want := int32(-0x66666667) // 0x99999999
	for i, smp := range samples {
		if smp.Start != want || smp.End != want {
			t.Fatalf("sample %d = %+v, want sentinel", i, smp)
		}
	}
}

func TestSamplerConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   SamplerConfig
		quota bool
	}{
		{"zero quota", SamplerConfig{PinSource: GPIO1, PinBit: 16, Signal: 0x23}, true},
		{"quota too large", SamplerConfig{PinSource: GPIO1, PinBit: 16, Signal: 0x23, Quota: MaxSamples + 1}, true},
		{"not a GPIO bank", SamplerConfig{PinSource: 0x1000, PinBit: 16, Signal: 0x23, Quota: 1}, false},
		{"pin bit", SamplerConfig{PinSource: GPIO2, PinBit: 32, Signal: 0x23, Quota: 1}, false},
		{"signal", SamplerConfig{PinSource: GPIO0, PinBit: 1, Signal: 3, Quota: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() accepted %+v", tt.cfg)
			}
			if errors.Is(err, ErrQuota) != tt.quota {
				t.Errorf("Validate() = %v, quota error %v", err, tt.quota)
			}
		})
	}
}

func TestSamplerShortMemory(t *testing.T) {
	if _, err := NewSampler(make(pru.Memory, smpSize-1)); err == nil {
		t.Errorf("short memory accepted")
	}
}
