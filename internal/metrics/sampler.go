package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Source reports the pid of every running product keyed by product id,
// along with the number of installed products.
type Source func() (pids map[string]int32, installed int)

// Sampler periodically refreshes the product gauges from a Source.
type Sampler struct {
	interval time.Duration
	source   Source
	logger   *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSampler(interval time.Duration, source Source, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		interval: interval,
		source:   source,
		logger:   logger,
		known:    make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start samples once and then on every tick until ctx is done or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	s.SampleOnce()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-t.C:
				s.SampleOnce()
			}
		}
	}()
}

func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// SampleOnce updates the gauges and drops series of products that stopped.
func (s *Sampler) SampleOnce() {
	pids, installed := s.source()
	SetCounts(installed, len(pids))

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			s.logger.Debug("sample product", "product", id, "pid", pid, "error", err)
			continue
		}
		cpu, _ := p.CPUPercent()
		var rss uint64
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			rss = mi.RSS
		}
		SetUsage(id, cpu, rss)
		s.known[id] = struct{}{}
	}
	for id := range s.known {
		if _, ok := pids[id]; !ok {
			DeleteUsage(id)
			delete(s.known, id)
		}
	}
}
