// Package sysinfo captures the hardware and OS details recorded alongside
// benchmark runs.
package sysinfo

import (
	"context"
	"math"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Info describes the machine a benchmark ran on.
type Info struct {
	Hostname         string  `json:"hostname"`
	OS               string  `json:"os"`
	Platform         string  `json:"platform,omitempty"`
	PlatformVersion  string  `json:"platform_version,omitempty"`
	KernelVersion    string  `json:"kernel_version,omitempty"`
	Arch             string  `json:"arch"`
	CPUVendor        string  `json:"cpu_vendor,omitempty"`
	CPUModel         string  `json:"cpu_model,omitempty"`
	CPUCores         int     `json:"cpu_cores"`
	CPUMhz           float64 `json:"cpu_mhz,omitempty"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryTotalGB    float64 `json:"memory_total_gb"`
	GoVersion        string  `json:"go_version"`
}

// Capture collects system information, degrading per probe: a failed probe
// logs a warning and leaves its fields zero rather than failing the capture.
func Capture(ctx context.Context, log logrus.FieldLogger) *Info {
	log = log.WithField("component", "sysinfo")

	info := &Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read host info")
	} else {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.PlatformVersion = hostInfo.PlatformVersion
		info.KernelVersion = hostInfo.KernelVersion
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read CPU info")
	} else if len(cpus) > 0 {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = cpus[0].ModelName
		info.CPUMhz = cpus[0].Mhz
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Warn("Failed to count CPU cores")
	} else {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read memory info")
	} else {
		info.MemoryTotalBytes = vm.Total
		info.MemoryTotalGB = RoundGB(vm.Total)
	}

	return info
}

// RoundGB converts bytes to gigabytes with two decimal places.
func RoundGB(bytes uint64) float64 {
	gb := float64(bytes) / (1024 * 1024 * 1024)

	return math.Round(gb*100) / 100
}
