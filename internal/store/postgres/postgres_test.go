package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"capillaire/internal/database"
	"capillaire/internal/diagnosis"
	"capillaire/internal/logging"
	"capillaire/internal/planner"
	"capillaire/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.ErrorKind
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, store.KindConstraint},
		{"check violation wrapped", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23514"}), store.KindConstraint},
		{"syntax error", &pgconn.PgError{Code: "42601"}, store.KindTransport},
		{"network", errors.New("connection refused"), store.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := store.KindOf(classify("op", tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

// TestStorageIntegration runs against a real database when
// POSTGRES_TEST_DSN points at one.
func TestStorageIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	require.NoError(t, database.RunPostgresMigrations(dsn))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewStorage(ctx, dsn, logging.NewNop())
	require.NoError(t, err)
	defer s.Close()

	userID := "it-" + uuid.NewString()
	plan := planner.Plan{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Diagnosis: diagnosis.Diagnosis{
			Curvature: diagnosis.CurvatureWavy, Scalp: diagnosis.ScalpNormal,
			Porosity: diagnosis.PorosityMedium, Budget: diagnosis.BudgetLow,
			Goal: diagnosis.GoalGrowth, WashFrequency: diagnosis.DefaultWashFrequency,
		},
		Tasks:   []planner.DayTask{{Day: 1, Category: planner.CategoryRest, Title: "Descanso"}},
		Summary: "ok",
	}

	_, err = s.UpsertPlan(ctx, userID, plan)
	require.NoError(t, err)
	plan.Tasks[0].Completed = true
	_, err = s.UpsertPlan(ctx, userID, plan)
	require.NoError(t, err)

	got, err := s.LoadLatestPlan(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Tasks[0].Completed)

	_, err = s.UpsertPlan(ctx, "someone-else", plan)
	kind, _ := store.KindOf(err)
	assert.Equal(t, store.KindConstraint, kind)

	require.NoError(t, s.SetSubscriptionStatus(ctx, userID, store.SubscriptionActive))
	active, err := s.HasActiveSubscription(ctx, userID)
	require.NoError(t, err)
	assert.True(t, active)

	email := userID + "@example.com"
	id, err := s.InsertClient(ctx, diagnosis.Lead{Name: "Ana", Email: email}, nil)
	require.NoError(t, err)
	found, ok, err := s.FindClientIDByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, found)
}
