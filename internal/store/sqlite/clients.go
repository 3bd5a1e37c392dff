package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/store"

	"github.com/google/uuid"
)

// ClientRepository stores leads captured at the end of the quiz.
type ClientRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(d *sql.DB) *ClientRepository {
	return &ClientRepository{db: d, now: time.Now}
}

// InsertClient saves lead together with the raw quiz answers and returns the
// new client id.
func (r *ClientRepository) InsertClient(ctx context.Context, lead diagnosis.Lead, answers diagnosis.QuizAnswers) (string, error) {
	if answers == nil {
		answers = diagnosis.QuizAnswers{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return "", store.Transport("insert client", fmt.Errorf("encode answers: %w", err))
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clients (id, name, email, quiz_answers, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(lead.Name), normalizeEmail(lead.Email), string(raw), r.now().UTC(),
	)
	if err != nil {
		return "", classify("insert client", err)
	}
	return id, nil
}

// FindClientIDByEmail returns the newest client id registered with email.
func (r *ClientRepository) FindClientIDByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM clients WHERE email = ? ORDER BY created_at DESC LIMIT 1`,
		normalizeEmail(email),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classify("find client", err)
	}
	return id, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ store.ClientStore = (*ClientRepository)(nil)
