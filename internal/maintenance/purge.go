package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/logger"
)

const defaultRunTimeout = 2 * time.Minute

var ErrInvalidSchedule = errors.New("invalid purge schedule")

type ResumePurger interface {
	PurgeResumes(ctx context.Context, days int) (domain.PurgeResumesResponse, error)
}

// PurgeScheduler deletes daily resumes older than the retention window on a
// cron schedule. A zero retention leaves it disabled.
type PurgeScheduler struct {
	purger  ResumePurger
	days    int
	spec    string
	timeout time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPurgeScheduler validates spec (six fields, seconds first, or a
// descriptor such as "@daily").
func NewPurgeScheduler(purger ResumePurger, days int, spec string, log *logger.Logger) (*PurgeScheduler, error) {
	if days < 0 {
		return nil, fmt.Errorf("retention days must not be negative: %d", days)
	}
	if _, err := cron.Parse(spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PurgeScheduler{
		purger:  purger,
		days:    days,
		spec:    spec,
		timeout: defaultRunTimeout,
		log:     log.With("component", "resume_purge"),
	}, nil
}

func (s *PurgeScheduler) Enabled() bool {
	return s.days > 0
}

func (s *PurgeScheduler) Start() error {
	if !s.Enabled() {
		s.log.Info("scheduled resume purge disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if err := c.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.Info("scheduled resume purge started", "schedule", s.spec, "retention_days", s.days)
	return nil
}

func (s *PurgeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
}

// RunOnce performs a single purge with the configured retention.
func (s *PurgeScheduler) RunOnce(ctx context.Context) (int64, error) {
	resp, err := s.purger.PurgeResumes(ctx, s.days)
	if err != nil {
		s.log.Error("resume purge failed", "retention_days", s.days, "error", err)
		return 0, err
	}
	s.log.Info("resume purge finished", "retention_days", s.days, "deleted", resp.Deleted)
	return resp.Deleted, nil
}
