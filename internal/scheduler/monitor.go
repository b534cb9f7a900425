package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

// QueueSource is the part of the store the monitor counts.
type QueueSource interface {
	ListConcepts(ctx context.Context) ([]string, error)
	ListVideos(ctx context.Context, id string, f model.Folder) ([]model.VideoFile, error)
}

// QueueGauge receives per-folder video counts.
type QueueGauge interface {
	SetQueue(concept, folder string, n int)
}

// QueueMonitor periodically counts queued and posted videos per concept and warns when a
// concept's queue runs dry.
type QueueMonitor struct {
	src      QueueSource
	gauge    QueueGauge
	alert    func(string) error
	log      *logging.Logger
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	empty map[string]bool // concepts already reported as empty
}

// NewQueueMonitor builds a monitor. gauge and alert may be nil.
func NewQueueMonitor(src QueueSource, gauge QueueGauge, alert func(string) error, interval time.Duration, log *logging.Logger) *QueueMonitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &QueueMonitor{
		src:      src,
		gauge:    gauge,
		alert:    alert,
		log:      log,
		interval: interval,
		stopCh:   make(chan struct{}),
		empty:    make(map[string]bool),
	}
}

// Start runs one check immediately and then every interval until Stop or ctx is done.
func (m *QueueMonitor) Start(ctx context.Context) {
	m.log.Infof("queue monitor: starting (every %s)", m.interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

func (m *QueueMonitor) Stop() {
	m.log.Infof("queue monitor: stopping...")
	close(m.stopCh)
	m.wg.Wait()
	m.log.Infof("queue monitor: stopped")
}

// QueueCount is one concept's folder sizes.
type QueueCount struct {
	ConceptID string `json:"conceptId"`
	Queue     int    `json:"queue"`
	Posted    int    `json:"posted"`
}

// Check counts every concept once. A concept whose listing fails is logged and skipped.
func (m *QueueMonitor) Check(ctx context.Context) []QueueCount {
	ids, err := m.src.ListConcepts(ctx)
	if err != nil {
		m.log.Errorf("queue monitor: list concepts: %v", err)
		return nil
	}
	var out []QueueCount
	for _, id := range ids {
		queue, err := m.src.ListVideos(ctx, id, model.FolderQueue)
		if err != nil {
			m.log.Errorf("queue monitor: %s: %v", id, err)
			continue
		}
		posted, err := m.src.ListVideos(ctx, id, model.FolderPosted)
		if err != nil {
			m.log.Errorf("queue monitor: %s: %v", id, err)
			continue
		}
		c := QueueCount{ConceptID: id, Queue: len(queue), Posted: len(posted)}
		out = append(out, c)
		if m.gauge != nil {
			m.gauge.SetQueue(id, string(model.FolderQueue), c.Queue)
			m.gauge.SetQueue(id, string(model.FolderPosted), c.Posted)
		}
		m.trackEmpty(id, c.Queue == 0)
	}
	m.log.Infof("queue monitor: checked %d concepts", len(out))
	return out
}

// trackEmpty alerts once when a queue becomes empty and resets when it is refilled.
func (m *QueueMonitor) trackEmpty(id string, empty bool) {
	m.mu.Lock()
	was := m.empty[id]
	m.empty[id] = empty
	m.mu.Unlock()

	if !empty || was {
		return
	}
	m.log.Warnf("queue monitor: %s has no queued videos", id)
	if m.alert == nil {
		return
	}
	if err := m.alert(fmt.Sprintf("📭 %s: queue is empty, add videos to keep posting", id)); err != nil {
		m.log.Warnf("queue monitor: alert not delivered: %v", err)
	}
}
