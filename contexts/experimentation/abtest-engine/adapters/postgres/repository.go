package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates the experiment tables when they are missing.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&assignmentModel{},
		&variantModel{},
		&outcomeDedupModel{},
		&outboxModel{},
	)
}

func (r *Repository) LookupAssignment(ctx context.Context, campaignID string, userID string) (string, bool, error) {
	var row assignmentModel
	err := r.db.WithContext(ctx).
		Select("variant_id").
		Where("campaign_id = ? AND user_id = ?", strings.TrimSpace(campaignID), strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, r.logError("abtest_repo_lookup_assignment_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.VariantID, true, nil
}

// CreateAssignment inserts the row only when the (campaign, user) key is
// free, then reads back whichever row holds the key. RowsAffected tells an
// insert apart from a same-value no-op.
func (r *Repository) CreateAssignment(ctx context.Context, assignment entities.Assignment) (bool, error) {
	row := assignmentModelFromEntity(assignment)
	if row.AssignedAt.IsZero() {
		row.AssignedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return false, domainerrors.ErrAlreadyAssigned
		}
		return false, r.logError("abtest_repo_create_assignment_failed", create.Error,
			"campaign_id", row.CampaignID,
			"user_id", row.UserID,
		)
	}
	if create.RowsAffected > 0 {
		return true, nil
	}

	existing, found, err := r.LookupAssignment(ctx, row.CampaignID, row.UserID)
	if err != nil {
		return false, err
	}
	if !found || existing != row.VariantID {
		return false, domainerrors.ErrAlreadyAssigned
	}
	return false, nil
}

func (r *Repository) ListAssignments(ctx context.Context, campaignID string) ([]entities.Assignment, error) {
	var rows []assignmentModel
	if err := r.db.WithContext(ctx).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Order("assigned_at ASC, user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("abtest_repo_list_assignments_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
		)
	}
	items := make([]entities.Assignment, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetModel(ctx context.Context, campaignID string, variantID string) (entities.BetaModel, bool, error) {
	row, found, err := loadVariantModel(r.db.WithContext(ctx), campaignID, variantID)
	if err != nil {
		return entities.BetaModel{}, false, r.logError("abtest_repo_get_model_failed", err,
			"campaign_id", strings.TrimSpace(campaignID),
			"variant_id", strings.TrimSpace(variantID),
		)
	}
	if !found {
		return entities.BetaModel{}, false, nil
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SeedModel(ctx context.Context, campaignID string, variantID string, initial entities.BetaModel) error {
	if !initial.Valid() {
		return domainerrors.ErrInvalidPrior
	}
	row := variantModel{
		CampaignID: strings.TrimSpace(campaignID),
		VariantID:  strings.TrimSpace(variantID),
		Alpha:      initial.Alpha,
		Beta:       initial.Beta,
		UpdatedAt:  time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "variant_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("abtest_repo_seed_model_failed", create.Error,
			"campaign_id", row.CampaignID,
			"variant_id", row.VariantID,
		)
	}
	return nil
}

// ApplyOutcome reserves the outcome's event id and increments the model in
// one transaction. The increment is an upsert evaluated by the database, so
// concurrent outcomes on one variant never lose updates.
func (r *Repository) ApplyOutcome(ctx context.Context, update ports.OutcomeUpdate) (entities.BetaModel, bool, error) {
	campaignID := strings.TrimSpace(update.CampaignID)
	variantID := strings.TrimSpace(update.VariantID)
	eventID := strings.TrimSpace(update.EventID)
	if !update.Initial.Valid() {
		return entities.BetaModel{}, false, domainerrors.ErrInvalidPrior
	}

	var (
		result   entities.BetaModel
		replayed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if eventID != "" {
			dedup := outcomeDedupModel{
				EventID:     eventID,
				CampaignID:  campaignID,
				VariantID:   variantID,
				Success:     update.Success,
				ProcessedAt: now,
			}
			create := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).Create(&dedup)
			if create.Error != nil {
				return create.Error
			}
			if create.RowsAffected == 0 {
				var existing outcomeDedupModel
				if err := tx.Where("event_id = ?", eventID).First(&existing).Error; err != nil {
					return err
				}
				if existing.CampaignID != campaignID || existing.VariantID != variantID || existing.Success != update.Success {
					return domainerrors.ErrConflict
				}
				row, found, err := loadVariantModel(tx, campaignID, variantID)
				if err != nil {
					return err
				}
				result = update.Initial
				if found {
					result = row.toEntity()
				}
				replayed = true
				return nil
			}
		}

		var successes, failures float64
		if update.Success {
			successes = 1
		} else {
			failures = 1
		}
		row := variantModel{
			CampaignID: campaignID,
			VariantID:  variantID,
			Alpha:      update.Initial.Alpha + successes,
			Beta:       update.Initial.Beta + failures,
			UpdatedAt:  now,
		}
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "campaign_id"}, {Name: "variant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"alpha":      gorm.Expr("abtest_variant_models.alpha + ?", successes),
				"beta":       gorm.Expr("abtest_variant_models.beta + ?", failures),
				"updated_at": now,
			}),
		}).Create(&row)
		if upsert.Error != nil {
			return upsert.Error
		}
		stored, found, err := loadVariantModel(tx, campaignID, variantID)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrConflict
		}
		result = stored.toEntity()
		return nil
	})
	if err != nil {
		if domainerrors.IsDomain(err) {
			return entities.BetaModel{}, false, err
		}
		return entities.BetaModel{}, false, r.logError("abtest_repo_apply_outcome_failed", err,
			"campaign_id", campaignID,
			"variant_id", variantID,
			"outcome_event_id", eventID,
		)
	}
	return result, replayed, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("abtest_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("abtest_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("abtest_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("abtest_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("abtest_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "experimentation/abtest-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("abtest repository operation failed", fields...)
	return err
}

func loadVariantModel(db *gorm.DB, campaignID string, variantID string) (variantModel, bool, error) {
	var row variantModel
	err := db.
		Where("campaign_id = ? AND variant_id = ?", strings.TrimSpace(campaignID), strings.TrimSpace(variantID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return variantModel{}, false, nil
		}
		return variantModel{}, false, err
	}
	return row, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ ports.AssignmentStore  = (*Repository)(nil)
	_ ports.ModelRepository  = (*Repository)(nil)
	_ ports.OutboxWriter     = (*Repository)(nil)
	_ ports.OutboxRepository = (*Repository)(nil)
)
