package agent

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

var processStart = time.Now()

// sendStatus collects a coarse system snapshot via gopsutil and reports it
// on the control channel, answering the hub's cached Status operator query
// (SPEC_FULL.md §4.8) without a dedicated Ping round trip.
func (s *Session) sendStatus(ch ssh.Channel) error {
	report := protocol.StatusReport{
		Hostname:   s.hostname,
		UptimeSecs: uint64(time.Since(processStart).Seconds()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		report.LoadPercent = uint64(percentages[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.MemUsedBytes = vm.Used
	}
	if du, err := disk.Usage("/"); err == nil {
		report.DiskFreeBytes = du.Free
	}

	return sendFrame(ch, protocol.EncodeAgentMessage(report))
}
