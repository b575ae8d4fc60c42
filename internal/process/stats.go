package process

import (
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrNotRunning is returned by Stats once the process has exited.
var ErrNotRunning = errors.New("process not running")

// Stats is a point-in-time resource sample of a running product.
type Stats struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	CreateTime time.Time `json:"create_time"`
}

// Stats samples CPU and memory usage of the process via gopsutil.
func (h *Handle) Stats() (Stats, error) {
	if h.Poll() != Running {
		return Stats{}, ErrNotRunning
	}
	p, err := gopsproc.NewProcess(int32(h.pid))
	if err != nil {
		return Stats{}, err
	}
	st := Stats{PID: h.pid, CreateTime: h.started}
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		st.NumThreads = n
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		st.CreateTime = time.UnixMilli(ms)
	}
	return st, nil
}
