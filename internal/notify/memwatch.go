package notify

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"video-publisher/internal/logging"
)

const (
	memWarnThresholdBytes  = 600 * 1024 * 1024
	memCritThresholdBytes  = 1200 * 1024 * 1024
	memCheckInterval       = 30 * time.Second
	goroutineWarnThreshold = 500
	goroutineCritThreshold = 1000
	memWarnCooldown        = 10 * time.Minute
)

// MemStats is a snapshot of the numbers the watcher looks at.
type MemStats struct {
	HeapAlloc  uint64
	Sys        uint64
	Goroutines int
}

func readMemStats() MemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemStats{HeapAlloc: ms.HeapAlloc, Sys: ms.Sys, Goroutines: runtime.NumGoroutine()}
}

// MemWatcher alerts when the daemon's heap or goroutine count runs away. A critical
// reading calls Stop, which the daemon wires to its shutdown.
type MemWatcher struct {
	alert func(string) error
	stop  func()
	log   *logging.Logger

	read       func() MemStats
	lastWarnAt time.Time
}

func NewMemWatcher(alert func(string) error, stop func(), log *logging.Logger) *MemWatcher {
	return &MemWatcher{alert: alert, stop: stop, log: log, read: readMemStats}
}

func (w *MemWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(memCheckInterval)
	defer ticker.Stop()
	w.log.Infof("memwatch: started (warn=%dMB, crit=%dMB, goroutines warn=%d crit=%d)",
		memWarnThresholdBytes/(1024*1024), memCritThresholdBytes/(1024*1024),
		goroutineWarnThreshold, goroutineCritThreshold)
	for {
		select {
		case <-ctx.Done():
			w.log.Infof("memwatch: stopped")
			return
		case <-ticker.C:
			w.check(time.Now())
		}
	}
}

// check returns the alert level it raised: "", "warn" or "critical".
func (w *MemWatcher) check(now time.Time) string {
	st := w.read()
	heapMB := st.HeapAlloc / (1024 * 1024)
	sysMB := st.Sys / (1024 * 1024)

	if st.Goroutines >= goroutineCritThreshold || st.HeapAlloc >= memCritThresholdBytes {
		msg := fmt.Sprintf("🚨 resource leak, shutting down\nheap: %d MB, sys: %d MB, goroutines: %d", heapMB, sysMB, st.Goroutines)
		w.log.Errorf("memwatch: CRITICAL heap=%dMB goroutines=%d", heapMB, st.Goroutines)
		w.send(msg)
		if w.stop != nil {
			w.stop()
		}
		return "critical"
	}

	warn := st.HeapAlloc > memWarnThresholdBytes || st.Goroutines >= goroutineWarnThreshold
	if warn && now.Sub(w.lastWarnAt) > memWarnCooldown {
		msg := fmt.Sprintf("⚠️ high resource usage\nheap: %d MB, sys: %d MB, goroutines: %d", heapMB, sysMB, st.Goroutines)
		w.log.Warnf("memwatch: WARNING heap=%dMB goroutines=%d", heapMB, st.Goroutines)
		w.send(msg)
		runtime.GC()
		w.lastWarnAt = now
		return "warn"
	}
	return ""
}

func (w *MemWatcher) send(msg string) {
	if w.alert == nil {
		return
	}
	if err := w.alert(msg); err != nil {
		w.log.Warnf("memwatch: alert not delivered: %v", err)
	}
}
