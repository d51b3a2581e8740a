/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tftp

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var processStartTime = time.Now()

// SelfHealth is a snapshot of the daemon's own process health, meant to
// ride alongside the transfer Snapshot on the same stats endpoint.
type SelfHealth struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	OpenFDs       int32   `json:"open_fds"`
	CPUPercent    float64 `json:"cpu_percent"`
}

// CollectSelfHealth gathers process-level health via gopsutil, the same
// way sptp's SysStats collects its own process metrics.
func CollectSelfHealth() (SelfHealth, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return SelfHealth{}, err
	}
	fds, err := proc.NumFDs()
	if err != nil {
		fds = -1
	}
	cpuPct, err := proc.Percent(0)
	if err != nil {
		cpuPct = 0
	}
	return SelfHealth{
		UptimeSeconds: int64(time.Since(processStartTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		OpenFDs:       fds,
		CPUPercent:    cpuPct,
	}, nil
}
