package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"

	"github.com/google/uuid"
)

type assignmentKey struct {
	campaignID string
	userID     string
}

type modelKey struct {
	campaignID string
	variantID  string
}

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store keeps assignments, models, outcome dedup and outbox rows in process
// memory. One mutex guards all maps so ApplyOutcome's dedup check and
// increment form a single atomic step.
type Store struct {
	mu sync.RWMutex

	assignments map[assignmentKey]entities.Assignment
	models      map[modelKey]entities.BetaModel
	outcomes    map[string]string
	outbox      map[string]outboxRecord
}

func NewStore(seed []entities.Assignment) *Store {
	assignments := make(map[assignmentKey]entities.Assignment, len(seed))
	for _, assignment := range seed {
		assignments[assignmentKey{
			campaignID: strings.TrimSpace(assignment.CampaignID),
			userID:     strings.TrimSpace(assignment.UserID),
		}] = assignment
	}
	return &Store{
		assignments: assignments,
		models:      make(map[modelKey]entities.BetaModel),
		outcomes:    make(map[string]string),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) LookupAssignment(_ context.Context, campaignID string, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignment, ok := s.assignments[assignmentKey{
		campaignID: strings.TrimSpace(campaignID),
		userID:     strings.TrimSpace(userID),
	}]
	if !ok {
		return "", false, nil
	}
	return assignment.VariantID, true, nil
}

func (s *Store) CreateAssignment(_ context.Context, assignment entities.Assignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignment.CampaignID = strings.TrimSpace(assignment.CampaignID)
	assignment.UserID = strings.TrimSpace(assignment.UserID)
	assignment.VariantID = strings.TrimSpace(assignment.VariantID)
	key := assignmentKey{campaignID: assignment.CampaignID, userID: assignment.UserID}
	if existing, ok := s.assignments[key]; ok {
		if existing.VariantID != assignment.VariantID {
			return false, domainerrors.ErrAlreadyAssigned
		}
		return false, nil
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	s.assignments[key] = assignment
	return true, nil
}

func (s *Store) ListAssignments(_ context.Context, campaignID string) ([]entities.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	campaignID = strings.TrimSpace(campaignID)
	items := make([]entities.Assignment, 0)
	for key, assignment := range s.assignments {
		if key.campaignID != campaignID {
			continue
		}
		items = append(items, assignment)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].AssignedAt.Equal(items[j].AssignedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].AssignedAt.Before(items[j].AssignedAt)
	})
	return items, nil
}

func (s *Store) GetModel(_ context.Context, campaignID string, variantID string) (entities.BetaModel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	model, ok := s.models[modelKey{campaignID: strings.TrimSpace(campaignID), variantID: strings.TrimSpace(variantID)}]
	return model, ok, nil
}

func (s *Store) SeedModel(_ context.Context, campaignID string, variantID string, initial entities.BetaModel) error {
	if !initial.Valid() {
		return domainerrors.ErrInvalidPrior
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := modelKey{campaignID: strings.TrimSpace(campaignID), variantID: strings.TrimSpace(variantID)}
	if _, ok := s.models[key]; !ok {
		s.models[key] = initial
	}
	return nil
}

func (s *Store) ApplyOutcome(_ context.Context, update ports.OutcomeUpdate) (entities.BetaModel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modelKey{campaignID: strings.TrimSpace(update.CampaignID), variantID: strings.TrimSpace(update.VariantID)}
	current, ok := s.models[key]
	if !ok {
		if !update.Initial.Valid() {
			return entities.BetaModel{}, false, domainerrors.ErrInvalidPrior
		}
		current = update.Initial
	}

	eventID := strings.TrimSpace(update.EventID)
	if eventID != "" {
		fingerprint := outcomeFingerprint(update)
		if existing, seen := s.outcomes[eventID]; seen {
			if existing != fingerprint {
				return entities.BetaModel{}, false, domainerrors.ErrConflict
			}
			return current, true, nil
		}
		s.outcomes[eventID] = fingerprint
	}

	next := current.Update(update.Success)
	s.models[key] = next
	return next, false, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
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

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func outcomeFingerprint(update ports.OutcomeUpdate) string {
	outcome := "failure"
	if update.Success {
		outcome = "success"
	}
	return strings.TrimSpace(update.CampaignID) + "|" + strings.TrimSpace(update.VariantID) + "|" + outcome
}

var (
	_ ports.AssignmentStore  = (*Store)(nil)
	_ ports.ModelRepository  = (*Store)(nil)
	_ ports.OutboxWriter     = (*Store)(nil)
	_ ports.OutboxRepository = (*Store)(nil)
	_ ports.Clock            = (*Store)(nil)
	_ ports.IDGenerator      = (*Store)(nil)
)
