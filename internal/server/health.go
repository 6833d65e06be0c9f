package server

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type healthResponse struct {
	Status         string        `json:"status"`
	ActiveSessions int           `json:"activeSessions"`
	Goroutines     int           `json:"goroutines"`
	Process        *processStats `json:"process,omitempty"`
}

type processStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	NumThreads int32   `json:"numThreads"`
	// Workers counts live child processes, i.e. external workers.
	Workers int `json:"workers"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	resp := healthResponse{
		Status:         "ok",
		ActiveSessions: s.store.ActiveCount(),
		Goroutines:     runtime.NumGoroutine(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	stats, err := selfStats(ctx)
	if err != nil {
		s.logger.Debug("process stats unavailable", "error", err)
	} else {
		resp.Process = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func selfStats(ctx context.Context) (*processStats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	stats := &processStats{PID: proc.Pid}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats.RSSBytes = mem.RSS

	// The remaining figures are best effort; not every platform has them.
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.NumThreads = n
	}
	if children, err := proc.ChildrenWithContext(ctx); err == nil {
		stats.Workers = len(children)
	}
	return stats, nil
}
