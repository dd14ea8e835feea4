package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"telephony-orchestrator/pkg/utils"
)

// PostgresStore persists calls.
//
// Schema (table calls):
//
//	call_id TEXT PRIMARY KEY,
//	room_name TEXT NOT NULL UNIQUE,
//	direction TEXT NOT NULL,
//	from_number TEXT NOT NULL DEFAULT '',
//	to_number TEXT NOT NULL DEFAULT '',
//	status TEXT NOT NULL,
//	agent_dispatched BOOLEAN NOT NULL DEFAULT FALSE,
//	session_id TEXT NOT NULL DEFAULT '',
//	participant JSONB,
//	end_reason TEXT NOT NULL DEFAULT '',
//	created_at TIMESTAMPTZ NOT NULL,
//	updated_at TIMESTAMPTZ NOT NULL
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callColumns = `call_id, room_name, direction, from_number, to_number, status,
	agent_dispatched, session_id, participant, end_reason, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	var participant []byte
	err := row.Scan(
		&c.CallID, &c.RoomName, &c.Direction, &c.From, &c.To, &c.Status,
		&c.AgentDispatched, &c.SessionID, &participant, &c.EndReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	if len(participant) > 0 {
		var p Participant
		if err := json.Unmarshal(participant, &p); err == nil {
			c.Participant = &p
		}
	}
	return c, nil
}

func (s *PostgresStore) GetCallByRoom(ctx context.Context, roomName string) (Call, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE room_name = $1`, roomName)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}
	return c, true, nil
}

func (s *PostgresStore) UpsertCallByRoom(ctx context.Context, c Call) (Call, error) {
	now := s.clock().UTC()
	var participant []byte
	if c.Participant != nil {
		participant, _ = json.Marshal(c.Participant)
	}

	var out Call
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// ON CONFLICT keeps identity fields; only status and updated_at move.
		row := tx.QueryRowContext(ctx, `
			INSERT INTO calls (`+callColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (room_name) DO UPDATE
			SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
			RETURNING `+callColumns,
			c.CallID, c.RoomName, c.Direction, c.From, c.To, c.Status,
			c.AgentDispatched, c.SessionID, participant, c.EndReason,
			c.CreatedAt, now,
		)
		stored, err := scanCall(row)
		if err != nil {
			return err
		}
		out = stored
		return nil
	})
	return out, err
}

func (s *PostgresStore) MarkAgentDispatched(ctx context.Context, roomName, sessionID string) (bool, error) {
	// The WHERE clause makes this a compare-and-set: only one concurrent
	// caller observes a row change.
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls
		SET agent_dispatched = TRUE, session_id = $2, updated_at = $3
		WHERE room_name = $1 AND NOT agent_dispatched`,
		roomName, sessionID, s.clock().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ClearAgentDispatched(ctx context.Context, roomName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calls
		SET agent_dispatched = FALSE, session_id = '', updated_at = $2
		WHERE room_name = $1`,
		roomName, s.clock().UTC(),
	)
	return err
}

func (s *PostgresStore) MarkEnded(ctx context.Context, callID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calls
		SET status = $2, end_reason = $3, updated_at = $4
		WHERE call_id = $1`,
		callID, CallStatusEnded, reason, s.clock().UTC(),
	)
	return err
}

func (s *PostgresStore) ListCalls(ctx context.Context, roomName string) ([]Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls ORDER BY created_at DESC LIMIT 200`
	args := []any{}
	if roomName != "" {
		query = `SELECT ` + callColumns + ` FROM calls WHERE room_name = $1 ORDER BY created_at DESC LIMIT 200`
		args = append(args, roomName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
