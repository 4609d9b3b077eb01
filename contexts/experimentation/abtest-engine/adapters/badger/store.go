package badgeradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	assignmentPrefix = "abtest/assignment/"
	modelPrefix      = "abtest/model/"
	dedupPrefix      = "abtest/outcome-dedup/"
	outboxPrefix     = "abtest/outbox/"

	defaultConflictRetries = 8
)

type assignmentRecord struct {
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	VariantID  string    `json:"variant_id"`
	Policy     string    `json:"policy"`
	AssignedAt time.Time `json:"assigned_at"`
}

type modelRecord struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

type dedupRecord struct {
	CampaignID string `json:"campaign_id"`
	VariantID  string `json:"variant_id"`
	Success    bool   `json:"success"`
}

type outboxRecord struct {
	Message   ports.OutboxMessage `json:"message"`
	Published bool                `json:"published"`
}

// Store keeps experiment state in an embedded badger database. Writes run in
// optimistic read-write transactions; a commit that loses to a concurrent
// writer fails with badger.ErrConflict and is retried from a fresh read.
type Store struct {
	db              *badger.DB
	logger          *slog.Logger
	conflictRetries uint
}

func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:              db,
		logger:          logger,
		conflictRetries: defaultConflictRetries,
	}
}

func (s *Store) LookupAssignment(ctx context.Context, campaignID string, userID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		record assignmentRecord
		found  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, assignmentKey(campaignID, userID), &record)
		return err
	})
	if err != nil {
		return "", false, s.logError("abtest_badger_lookup_assignment_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"user_id", strings.TrimSpace(userID),
		)
	}
	if !found {
		return "", false, nil
	}
	return record.VariantID, true, nil
}

// CreateAssignment writes the assignment only if the key is absent. Two
// concurrent creates for one key conflict at commit; the retry then sees the
// winner's row and resolves to no-op or ErrAlreadyAssigned.
func (s *Store) CreateAssignment(ctx context.Context, assignment entities.Assignment) (bool, error) {
	record := assignmentRecord{
		CampaignID: strings.TrimSpace(assignment.CampaignID),
		UserID:     strings.TrimSpace(assignment.UserID),
		VariantID:  strings.TrimSpace(assignment.VariantID),
		Policy:     string(assignment.Policy),
		AssignedAt: assignment.AssignedAt.UTC(),
	}
	if record.AssignedAt.IsZero() {
		record.AssignedAt = time.Now().UTC()
	}
	key := assignmentKey(record.CampaignID, record.UserID)
	inserted := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		inserted = false
		var existing assignmentRecord
		found, err := getJSON(txn, key, &existing)
		if err != nil {
			return err
		}
		if found {
			if existing.VariantID != record.VariantID {
				return domainerrors.ErrAlreadyAssigned
			}
			return nil
		}
		inserted = true
		return setJSON(txn, key, record)
	})
	if err != nil {
		if domainerrors.IsDomain(err) {
			return false, err
		}
		return false, s.logError("abtest_badger_create_assignment_failed", err,
			"campaign_id", record.CampaignID,
			"user_id", record.UserID,
		)
	}
	return inserted, nil
}

func (s *Store) ListAssignments(ctx context.Context, campaignID string) ([]entities.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(assignmentPrefix + strings.TrimSpace(campaignID) + "\x00")
	items := make([]entities.Assignment, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var record assignmentRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			items = append(items, entities.Assignment{
				CampaignID: record.CampaignID,
				UserID:     record.UserID,
				VariantID:  record.VariantID,
				Policy:     entities.PolicyName(record.Policy),
				AssignedAt: record.AssignedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.logError("abtest_badger_list_assignments_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
		)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].AssignedAt.Equal(items[j].AssignedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].AssignedAt.Before(items[j].AssignedAt)
	})
	return items, nil
}

func (s *Store) GetModel(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, bool, error) {
	if err := ctx.Err(); err != nil {
		return entities.BetaModel{}, false, err
	}
	var (
		record modelRecord
		found  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, modelKey(campaignID, variantID), &record)
		return err
	})
	if err != nil {
		return entities.BetaModel{}, false, s.logError("abtest_badger_get_model_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"variant_id", strings.TrimSpace(variantID),
		)
	}
	if !found {
		return entities.BetaModel{}, false, nil
	}
	return entities.BetaModel{Alpha: record.Alpha, Beta: record.Beta}, true, nil
}

func (s *Store) SeedModel(ctx context.Context, campaignID string, variantID string, initial entities.BetaModel) error {
	if !initial.Valid() {
		return domainerrors.ErrInvalidPrior
	}
	key := modelKey(campaignID, variantID)
	err := s.update(ctx, func(txn *badger.Txn) error {
		var existing modelRecord
		found, err := getJSON(txn, key, &existing)
		if err != nil || found {
			return err
		}
		return setJSON(txn, key, modelRecord{Alpha: initial.Alpha, Beta: initial.Beta})
	})
	if err != nil {
		return s.logError("abtest_badger_seed_model_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"variant_id", strings.TrimSpace(variantID),
		)
	}
	return nil
}

// ApplyOutcome reads the model, checks the event id, and writes the
// incremented model inside one transaction.
func (s *Store) ApplyOutcome(ctx context.Context, update ports.OutcomeUpdate) (entities.BetaModel, bool, error) {
	campaignID := strings.TrimSpace(update.CampaignID)
	variantID := strings.TrimSpace(update.VariantID)
	eventID := strings.TrimSpace(update.EventID)
	if !update.Initial.Valid() {
		return entities.BetaModel{}, false, domainerrors.ErrInvalidPrior
	}
	key := modelKey(campaignID, variantID)

	var (
		result   entities.BetaModel
		replayed bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		result = update.Initial
		replayed = false
		var current modelRecord
		found, err := getJSON(txn, key, &current)
		if err != nil {
			return err
		}
		if found {
			result = entities.BetaModel{Alpha: current.Alpha, Beta: current.Beta}
		}

		if eventID != "" {
			dedupKey := []byte(dedupPrefix + eventID)
			var seen dedupRecord
			exists, err := getJSON(txn, dedupKey, &seen)
			if err != nil {
				return err
			}
			if exists {
				if seen.CampaignID != campaignID || seen.VariantID != variantID || seen.Success != update.Success {
					return domainerrors.ErrConflict
				}
				replayed = true
				return nil
			}
			if err := setJSON(txn, dedupKey, dedupRecord{
				CampaignID: campaignID,
				VariantID:  variantID,
				Success:    update.Success,
			}); err != nil {
				return err
			}
		}

		result = result.Update(update.Success)
		return setJSON(txn, key, modelRecord{Alpha: result.Alpha, Beta: result.Beta})
	})
	if err != nil {
		if domainerrors.IsDomain(err) {
			return entities.BetaModel{}, false, err
		}
		return entities.BetaModel{}, false, s.logError("abtest_badger_apply_outcome_failed", err,
			"campaign_id", campaignID,
			"variant_id", variantID,
			"outcome_event_id", eventID,
		)
	}
	return result, replayed, nil
}

func (s *Store) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return s.logError("abtest_badger_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	key := []byte(outboxPrefix + outboxID)
	err = s.update(ctx, func(txn *badger.Txn) error {
		var existing outboxRecord
		found, err := getJSON(txn, key, &existing)
		if err != nil {
			return err
		}
		if found {
			if !bytes.Equal(existing.Message.Payload, payload) {
				return domainerrors.ErrConflict
			}
			return nil
		}
		return setJSON(txn, key, outboxRecord{Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		}})
	})
	if err != nil {
		if domainerrors.IsDomain(err) {
			return err
		}
		return s.logError("abtest_badger_append_outbox_failed", err, "outbox_id", outboxID)
	}
	return nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(outboxPrefix), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var record outboxRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			if !record.Published {
				items = append(items, record.Message)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.logError("abtest_badger_list_pending_outbox_failed", err, "limit", limit)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, outboxID string, _ time.Time) error {
	key := []byte(outboxPrefix + strings.TrimSpace(outboxID))
	err := s.update(ctx, func(txn *badger.Txn) error {
		var record outboxRecord
		found, err := getJSON(txn, key, &record)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrConflict
		}
		record.Published = true
		return setJSON(txn, key, record)
	})
	if err != nil {
		if domainerrors.IsDomain(err) {
			return err
		}
		return s.logError("abtest_badger_mark_outbox_published_failed", err,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on commit conflicts.
// Any other error ends the retry loop.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.db.Update(fn)
		if err == nil || errors.Is(err, badger.ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.conflictRetries))
	return err
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "experimentation/abtest-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("abtest badger operation failed", fields...)
	return err
}

func assignmentKey(campaignID string, userID string) []byte {
	return []byte(assignmentPrefix + strings.TrimSpace(campaignID) + "\x00" + strings.TrimSpace(userID))
}

func modelKey(campaignID string, variantID string) []byte {
	return []byte(modelPrefix + strings.TrimSpace(campaignID) + "\x00" + strings.TrimSpace(variantID))
}

func getJSON(txn *badger.Txn, key []byte, target any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, target)
	}); err != nil {
		return false, err
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, payload)
}

var (
	_ ports.AssignmentStore  = (*Store)(nil)
	_ ports.ModelRepository  = (*Store)(nil)
	_ ports.OutboxWriter     = (*Store)(nil)
	_ ports.OutboxRepository = (*Store)(nil)
)
