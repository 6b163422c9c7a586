package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"pdvledger/backend/internal/cache"
	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/logger"
	"pdvledger/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const defaultSummaryTTL = 5 * time.Minute

type Service struct {
	repo       store.Repository
	cache      cache.SummaryCache
	summaryTTL time.Duration
	clock      clock.Clock
	log        *logger.Logger
	validate   *validator.Validate
}

type Option func(*Service)

func WithSummaryCache(c cache.SummaryCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
		if ttl > 0 {
			s.summaryTTL = ttl
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		cache:      cache.NoopSummaryCache{},
		summaryTTL: defaultSummaryTTL,
		clock:      clock.System{},
		log:        logger.NewNop(),
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "service")
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	if actor.Username != "" {
		detail = fmt.Sprintf("actor=%s,%s", actor.Username, detail)
	}

	if err := s.repo.CreateHistory(ctx, domain.HistoryEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    detail,
		CreatedAt:  s.clock.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to write history", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

func (s *Service) invalidateSummaries(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("failed to invalidate summary cache", "error", err)
	}
}

func parseRange(start string, end string) (domain.DateRange, error) {
	rng, err := domain.ParseDateRange(start, end)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	return rng, nil
}
