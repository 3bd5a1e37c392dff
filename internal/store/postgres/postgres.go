// Package postgres implements the store contracts on a remote Postgres
// database through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/logging"
	"capillaire/internal/planner"
	"capillaire/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage serves plans, subscriptions and clients from Postgres.
type Storage struct {
	pool   *pgxpool.Pool
	logger logging.Logger
	now    func() time.Time
}

// NewStorage connects a pool to dsn. Migrations are applied separately by
// database.RunPostgresMigrations.
func NewStorage(ctx context.Context, dsn string, logger logging.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	return &Storage{pool: pool, logger: logger, now: time.Now}, nil
}

// Close releases the pool.
func (p *Storage) Close() {
	p.pool.Close()
}

// Ping checks the connection.
func (p *Storage) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Repositories exposes the storage through the backend-neutral bundle.
func (p *Storage) Repositories() store.Repositories {
	return store.Repositories{Plans: p, Subscriptions: p, Clients: p}
}

// --- PlanStore ---

func (p *Storage) LoadLatestPlan(ctx context.Context, userID string) (*planner.Plan, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, diagnosis, tasks, summary, created_at FROM plans WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID)

	var (
		pl          planner.Plan
		diag, tasks []byte
	)
	if err := row.Scan(&pl.ID, &diag, &tasks, &pl.Summary, &pl.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		p.logger.Errorf("failed to load plan: %v", err)
		return nil, classify("load latest plan", err)
	}
	if err := json.Unmarshal(diag, &pl.Diagnosis); err != nil {
		return nil, store.Transport("load latest plan", fmt.Errorf("decode diagnosis: %w", err))
	}
	if err := json.Unmarshal(tasks, &pl.Tasks); err != nil {
		return nil, store.Transport("load latest plan", fmt.Errorf("decode tasks: %w", err))
	}
	pl.CreatedAt = pl.CreatedAt.UTC()
	return &pl, nil
}

func (p *Storage) UpsertPlan(ctx context.Context, userID string, plan planner.Plan) (string, error) {
	id := plan.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := p.now().UTC()
	created := plan.CreatedAt
	if created.IsZero() {
		created = now
	}
	tasks := plan.Tasks
	if tasks == nil {
		tasks = []planner.DayTask{}
	}
	diag, err := json.Marshal(plan.Diagnosis)
	if err != nil {
		return "", store.Transport("upsert plan", err)
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return "", store.Transport("upsert plan", err)
	}

	tag, err := p.pool.Exec(ctx, `INSERT INTO plans (id, user_id, diagnosis, tasks, summary, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET diagnosis = EXCLUDED.diagnosis, tasks = EXCLUDED.tasks, summary = EXCLUDED.summary, updated_at = EXCLUDED.updated_at
WHERE plans.user_id = EXCLUDED.user_id`,
		id, userID, diag, tasksJSON, plan.Summary, created, now)
	if err != nil {
		p.logger.Errorf("failed to upsert plan: %v", err)
		return "", classify("upsert plan", err)
	}
	if tag.RowsAffected() == 0 {
		return "", store.Constraint("upsert plan", fmt.Errorf("plan %s belongs to another user", id))
	}
	return id, nil
}

// --- SubscriptionStore ---

func (p *Storage) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND status = $2)`,
		userID, string(store.SubscriptionActive)).Scan(&exists)
	if err != nil {
		p.logger.Errorf("failed to query subscription: %v", err)
		return false, classify("has active subscription", err)
	}
	return exists, nil
}

func (p *Storage) SetSubscriptionStatus(ctx context.Context, userID string, status store.SubscriptionStatus) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET status = $1 WHERE user_id = $2 AND status = $3`,
			string(store.SubscriptionInactive), userID, string(store.SubscriptionActive)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO subscriptions (id, user_id, status, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), userID, string(status), p.now().UTC())
		return err
	})
	if err != nil {
		p.logger.Errorf("failed to set subscription status: %v", err)
		return classify("set subscription status", err)
	}
	return nil
}

// --- ClientStore ---

func (p *Storage) InsertClient(ctx context.Context, lead diagnosis.Lead, answers diagnosis.QuizAnswers) (string, error) {
	if answers == nil {
		answers = diagnosis.QuizAnswers{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return "", store.Transport("insert client", err)
	}
	id := uuid.NewString()
	_, err = p.pool.Exec(ctx, `INSERT INTO clients (id, name, email, quiz_answers, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, strings.TrimSpace(lead.Name), normalizeEmail(lead.Email), raw, p.now().UTC())
	if err != nil {
		p.logger.Errorf("failed to insert client: %v", err)
		return "", classify("insert client", err)
	}
	return id, nil
}

func (p *Storage) FindClientIDByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := p.pool.QueryRow(ctx, `SELECT id FROM clients WHERE email = $1 ORDER BY created_at DESC LIMIT 1`, normalizeEmail(email)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		p.logger.Errorf("failed to find client: %v", err)
		return "", false, classify("find client", err)
	}
	return id, true, nil
}

// classify maps Postgres integrity violations (SQLSTATE class 23) to
// constraint errors and everything else to transport errors.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return store.Constraint(op, err)
	}
	return store.Transport(op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Compile-time assertions ---
var _ store.PlanStore = (*Storage)(nil)
var _ store.SubscriptionStore = (*Storage)(nil)
var _ store.ClientStore = (*Storage)(nil)
