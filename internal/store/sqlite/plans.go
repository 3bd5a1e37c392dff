package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"capillaire/internal/planner"
	"capillaire/internal/store"

	"github.com/google/uuid"
)

const (
	selectLatestPlan = `SELECT id, diagnosis, tasks, summary, created_at
FROM plans WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`

	upsertPlan = `INSERT INTO plans (id, user_id, diagnosis, tasks, summary, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    diagnosis = excluded.diagnosis,
    tasks = excluded.tasks,
    summary = excluded.summary,
    updated_at = excluded.updated_at
WHERE plans.user_id = excluded.user_id`
)

// PlanRepository is a database-backed repository for care plans.
type PlanRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(d *sql.DB) *PlanRepository {
	return &PlanRepository{db: d, now: time.Now}
}

// LoadLatestPlan returns the newest plan for userID, or nil if there is none.
func (r *PlanRepository) LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error) {
	var (
		p           planner.Plan
		diag, tasks string
	)
	err := r.db.QueryRowContext(ctx, selectLatestPlan, userID).Scan(&p.ID, &diag, &tasks, &p.Summary, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("load latest plan", err)
	}

	if err := json.Unmarshal([]byte(diag), &p.Diagnosis); err != nil {
		return nil, store.Transport("load latest plan", fmt.Errorf("decode diagnosis: %w", err))
	}
	if err := json.Unmarshal([]byte(tasks), &p.Tasks); err != nil {
		return nil, store.Transport("load latest plan", fmt.Errorf("decode tasks: %w", err))
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// UpsertPlan inserts plan or updates the row with the same id. A plan id
// owned by another user is a constraint error.
func (r *PlanRepository) UpsertPlan(ctx context.Context, userID string, plan planner.Plan) (string, error) {
	id := plan.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.now().UTC()
	created := plan.CreatedAt
	if created.IsZero() {
		created = now
	}

	diag, err := json.Marshal(plan.Diagnosis)
	if err != nil {
		return "", store.Transport("upsert plan", fmt.Errorf("encode diagnosis: %w", err))
	}
	tasks := plan.Tasks
	if tasks == nil {
		tasks = []planner.DayTask{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return "", store.Transport("upsert plan", fmt.Errorf("encode tasks: %w", err))
	}

	res, err := r.db.ExecContext(ctx, upsertPlan, id, userID, string(diag), string(tasksJSON), plan.Summary, created.UTC(), now)
	if err != nil {
		return "", classify("upsert plan", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", store.Constraint("upsert plan", fmt.Errorf("plan %s belongs to another user", id))
	}
	return id, nil
}

var _ store.PlanStore = (*PlanRepository)(nil)
