package postgresadapter

import (
	"strings"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
)

type assignmentModel struct {
	CampaignID string    `gorm:"column:campaign_id;primaryKey"`
	UserID     string    `gorm:"column:user_id;primaryKey"`
	VariantID  string    `gorm:"column:variant_id;not null"`
	Policy     string    `gorm:"column:policy"`
	AssignedAt time.Time `gorm:"column:assigned_at;not null"`
}

func (assignmentModel) TableName() string {
	return "abtest_assignments"
}

func assignmentModelFromEntity(assignment entities.Assignment) assignmentModel {
	return assignmentModel{
		CampaignID: strings.TrimSpace(assignment.CampaignID),
		UserID:     strings.TrimSpace(assignment.UserID),
		VariantID:  strings.TrimSpace(assignment.VariantID),
		Policy:     string(assignment.Policy),
		AssignedAt: assignment.AssignedAt.UTC(),
	}
}

func (m assignmentModel) toEntity() entities.Assignment {
	return entities.Assignment{
		CampaignID: m.CampaignID,
		UserID:     m.UserID,
		VariantID:  m.VariantID,
		Policy:     entities.PolicyName(m.Policy),
		AssignedAt: m.AssignedAt.UTC(),
	}
}

type variantModel struct {
	CampaignID string    `gorm:"column:campaign_id;primaryKey"`
	VariantID  string    `gorm:"column:variant_id;primaryKey"`
	Alpha      float64   `gorm:"column:alpha;not null"`
	Beta       float64   `gorm:"column:beta;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (variantModel) TableName() string {
	return "abtest_variant_models"
}

func (m variantModel) toEntity() entities.BetaModel {
	return entities.BetaModel{Alpha: m.Alpha, Beta: m.Beta}
}

type outcomeDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	CampaignID  string    `gorm:"column:campaign_id"`
	VariantID   string    `gorm:"column:variant_id"`
	Success     bool      `gorm:"column:success"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (outcomeDedupModel) TableName() string {
	return "abtest_outcome_dedup"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "abtest_outbox"
}
