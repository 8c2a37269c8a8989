package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

type SessionHistoryRepository struct {
	db DBTX
}

func NewSessionHistoryRepository(db DBTX) *SessionHistoryRepository {
	return &SessionHistoryRepository{db: db}
}

// Append stores one participant's copy of an ended session. The full session
// snapshot is kept as jsonb for post-session reporting.
func (r *SessionHistoryRepository) Append(
	ctx context.Context,
	userID string,
	session *models.TeleSession,
) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO session_history (user_id, session_id, patient_id, therapist_id, status, session_type, started_at, ended_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var startedAt *time.Time
	if session.ActualStart != nil {
		startedAt = session.ActualStart
	}
	_, err = r.db.Exec(
		ctx,
		query,
		userID,
		session.ID,
		session.PatientID,
		session.TherapistID,
		string(session.Status),
		session.SessionType,
		startedAt,
		session.EndedAt,
		payload,
	)
	return err
}

func (r *SessionHistoryRepository) List(
	ctx context.Context,
	userID string,
	limit int,
) ([]models.TeleSession, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT payload
		FROM session_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.TeleSession, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var session models.TeleSession
		if err := json.Unmarshal(payload, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
