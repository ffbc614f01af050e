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

/*

Package loopback drives a closed loop pulse timing test on the two PRU cores.

One core (the generator) produces a pulse train whose high and low times are
commanded through its data RAM; the other core (the sampler) watches a GPIO
pin, records the counter value at each rising and falling edge into its data
RAM, and raises a completion event once it has recorded its sample quota.

The data RAM of each core is viewed through a Region with a fixed layout.
Only Generator and Sampler access the fields, and each field has a single
writer: the host writes the generator's delays and the sampler's
configuration, the sampler core writes its samples.

Controller sequences both cores: reset, load, set up both regions, and only
then enable both. The returned Run issues pulse width commands, waits for the
sampler's completion and reads back the Log.

	p, err := pru.Open(loopback.DefaultWiring.Config())
	c, err := loopback.Attach(p, loopback.DefaultWiring, logger)
	run, err := c.Start(genProg, smpProg, smpConfig, 0)
	lg, err := run.Measure(ctx, loopback.Sweep{To: 219, Step: 1, Interval: 20 * time.Millisecond})
	lg.Report(os.Stdout)

*/
package loopback
