package postgresadapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert assignment: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure is not a unique violation")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestAssignmentModelRoundTrip(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	model := assignmentModelFromEntity(entities.Assignment{
		CampaignID: " home_layout ",
		UserID:     "u1 ",
		VariantID:  " b",
		Policy:     entities.PolicyThompsonSampling,
		AssignedAt: at,
	})
	if model.CampaignID != "home_layout" || model.UserID != "u1" || model.VariantID != "b" {
		t.Fatalf("identifiers not trimmed: %+v", model)
	}
	if model.AssignedAt.Location() != time.UTC || !model.AssignedAt.Equal(at) {
		t.Fatalf("assigned_at not normalised to UTC: %v", model.AssignedAt)
	}
	if got := model.toEntity(); got.Policy != entities.PolicyThompsonSampling || got.VariantID != "b" {
		t.Fatalf("unexpected entity %+v", got)
	}
	if (variantModel{Alpha: 3, Beta: 4}).toEntity() != (entities.BetaModel{Alpha: 3, Beta: 4}) {
		t.Fatalf("variant model mapping lost parameters")
	}
}
