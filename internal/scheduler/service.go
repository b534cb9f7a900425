// Package scheduler decides when each concept posts and runs the posting attempts that are due.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"video-publisher/internal"
	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

// Runner performs one posting attempt for a concept.
type Runner interface {
	RunConcept(ctx context.Context, conceptID string) error
}

// ConceptSource lists concept configs.
type ConceptSource interface {
	ListConcepts(ctx context.Context) ([]string, error)
	GetConcept(ctx context.Context, id string) (*model.ConceptConfig, error)
}

// Service ticks on a cron spec and runs every due concept, one after another.
type Service struct {
	concepts ConceptSource
	runner   Runner
	monitor  *QueueMonitor
	log      *logging.Logger
	cron     *cron.Cron

	loc    *time.Location
	window time.Duration
	now    func() time.Time

	tickMu sync.Mutex // one tick at a time

	doneMu sync.Mutex
	done   map[string]time.Time // Due.Key -> when it ran
}

func New(cfg internal.Config, concepts ConceptSource, runner Runner, monitor *QueueMonitor, log *logging.Logger) *Service {
	s := &Service{
		concepts: concepts,
		runner:   runner,
		monitor:  monitor,
		log:      log,
		cron:     cron.New(cron.WithSeconds()),
		loc:      cfg.ScheduleLocation(),
		window:   cfg.ScheduleWindow,
		now:      time.Now,
		done:     make(map[string]time.Time),
	}
	if s.window <= 0 {
		s.window = 59 * time.Minute
	}
	return s
}

// Run starts the cron loop and the queue monitor and blocks until ctx is done.
func (s *Service) Run(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		s.log.Infof("cron: checking schedules")
		s.Tick(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()

	if s.monitor != nil {
		s.monitor.Start(ctx)
	}

	<-ctx.Done()

	if s.monitor != nil {
		s.monitor.Stop()
	}

	ctxStop := s.cron.Stop()
	select {
	case <-ctxStop.Done():
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("cron stop timeout")
	}
}

// Tick runs every concept due at the current time and returns what it ran. A tick that starts
// while the previous one is still running does nothing.
func (s *Service) Tick(ctx context.Context) []Due {
	if !s.tickMu.TryLock() {
		s.log.Warnf("scheduler: previous tick still running, skipping")
		return nil
	}
	defer s.tickMu.Unlock()

	now := s.now()
	concepts := s.loadConcepts(ctx)
	due := DueConcepts(concepts, now, s.loc, s.window)
	s.log.Infof("scheduler: %d concepts, %d due at %s", len(concepts), len(due), now.In(s.loc).Format("2006-01-02 15:04"))

	var ran []Due
	for _, d := range due {
		if s.alreadyRan(d) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ran
		}
		s.log.Infof("scheduler: running %s (%s) for %s", d.Name, d.ConceptID, d.Time)
		if err := s.runner.RunConcept(ctx, d.ConceptID); err != nil {
			s.log.Errorf("scheduler: %s failed: %v", d.ConceptID, err)
		}
		s.markRan(d, now)
		ran = append(ran, d)
	}
	s.prune(now)
	return ran
}

func (s *Service) loadConcepts(ctx context.Context) map[string]model.ConceptConfig {
	ids, err := s.concepts.ListConcepts(ctx)
	if err != nil {
		s.log.Errorf("scheduler: list concepts: %v", err)
		return nil
	}
	out := make(map[string]model.ConceptConfig, len(ids))
	for _, id := range ids {
		cfg, err := s.concepts.GetConcept(ctx, id)
		if err != nil {
			s.log.Warnf("scheduler: skipping %s: %v", id, err)
			continue
		}
		out[id] = *cfg
	}
	return out
}

func (s *Service) alreadyRan(d Due) bool {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	_, ok := s.done[d.Key()]
	return ok
}

func (s *Service) markRan(d Due, at time.Time) {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	s.done[d.Key()] = at
}

// prune forgets occurrences that can no longer fall inside the window.
func (s *Service) prune(now time.Time) {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	for k, at := range s.done {
		if now.Sub(at) > 2*s.window {
			delete(s.done, k)
		}
	}
}
