package retrying

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxTries        = 3
	defaultInitialInterval = 50 * time.Millisecond
)

// Backend is what the decorator wraps: one store serving both ports.
type Backend interface {
	ports.AssignmentStore
	ports.ModelRepository
}

type Config struct {
	MaxTries        uint
	InitialInterval time.Duration
}

// Store retries transient store failures with exponential backoff. Domain
// errors are returned immediately. ApplyOutcome is retried only when the
// outcome carries an event id, since a retried increment without one could
// count twice.
type Store struct {
	next   Backend
	config Config
	logger *slog.Logger
}

func New(next Backend, config Config, logger *slog.Logger) *Store {
	if config.MaxTries == 0 {
		config.MaxTries = defaultMaxTries
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaultInitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{next: next, config: config, logger: logger}
}

func (s *Store) LookupAssignment(ctx context.Context, campaignID string, userID string) (string, bool, error) {
	type lookup struct {
		variantID string
		found     bool
	}
	result, err := retry(ctx, s, "lookup_assignment", func() (lookup, error) {
		variantID, found, err := s.next.LookupAssignment(ctx, campaignID, userID)
		return lookup{variantID: variantID, found: found}, err
	})
	return result.variantID, result.found, err
}

// CreateAssignment is safe to retry: a retry after a lost response either
// finds its own row (no-op) or another request's (ErrAlreadyAssigned). Such a
// retry reports false, so the caller treats the row as pre-existing.
func (s *Store) CreateAssignment(ctx context.Context, assignment entities.Assignment) (bool, error) {
	return retry(ctx, s, "create_assignment", func() (bool, error) {
		return s.next.CreateAssignment(ctx, assignment)
	})
}

func (s *Store) ListAssignments(ctx context.Context, campaignID string) ([]entities.Assignment, error) {
	return retry(ctx, s, "list_assignments", func() ([]entities.Assignment, error) {
		return s.next.ListAssignments(ctx, campaignID)
	})
}

func (s *Store) GetModel(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, bool, error) {
	type read struct {
		model entities.BetaModel
		found bool
	}
	result, err := retry(ctx, s, "get_model", func() (read, error) {
		model, found, err := s.next.GetModel(ctx, campaignID, variantID)
		return read{model: model, found: found}, err
	})
	return result.model, result.found, err
}

func (s *Store) SeedModel(ctx context.Context, campaignID string, variantID string, initial entities.BetaModel) error {
	_, err := retry(ctx, s, "seed_model", func() (struct{}, error) {
		return struct{}{}, s.next.SeedModel(ctx, campaignID, variantID, initial)
	})
	return err
}

func (s *Store) ApplyOutcome(ctx context.Context, update ports.OutcomeUpdate) (entities.BetaModel, bool, error) {
	if strings.TrimSpace(update.EventID) == "" {
		return s.next.ApplyOutcome(ctx, update)
	}
	type applied struct {
		model    entities.BetaModel
		replayed bool
	}
	result, err := retry(ctx, s, "apply_outcome", func() (applied, error) {
		model, replayed, err := s.next.ApplyOutcome(ctx, update)
		return applied{model: model, replayed: replayed}, err
	})
	return result.model, result.replayed, err
}

func retry[T any](ctx context.Context, s *Store, operation string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.InitialInterval
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		value, err := fn()
		if err == nil {
			return value, nil
		}
		if domainerrors.IsDomain(err) {
			return value, backoff.Permanent(err)
		}
		s.logger.Warn("abtest store operation failed; retrying",
			"event", "abtest_store_retry",
			"module", "experimentation/abtest-engine",
			"layer", "adapter",
			"operation", operation,
			"attempt", attempt,
			"error", err.Error(),
		)
		return value, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.config.MaxTries))
}

var (
	_ ports.AssignmentStore = (*Store)(nil)
	_ ports.ModelRepository = (*Store)(nil)
)
