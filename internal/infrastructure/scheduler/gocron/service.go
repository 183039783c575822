package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
	mu        *sync.Mutex
	started   bool
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc, &sync.Mutex{}, false}
}

func (s *service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Nothing to do if already started
	if s.started {
		return
	}
	s.scheduler.StartAsync()
	s.started = true
}

func (s *service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.scheduler.Stop()
	s.started = false
}

// ScheduleEvery runs fn every interval, starting one interval from now. A run
// that is still in progress when the next one is due is skipped.
func (s *service) ScheduleEvery(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(fn)
	return err
}
