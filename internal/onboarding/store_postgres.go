package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"telephony-orchestrator/pkg/utils"
)

// PostgresStore persists integrations and bindings.
//
// Schema:
//
//	CREATE TABLE integrations (
//	  id TEXT PRIMARY KEY,
//	  carrier TEXT NOT NULL,
//	  name TEXT NOT NULL DEFAULT '',
//	  sealed_credentials TEXT NOT NULL,
//	  fingerprint TEXT NOT NULL,
//	  status TEXT NOT NULL,
//	  trunk_id TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE bindings (
//	  id TEXT PRIMARY KEY,
//	  integration_id TEXT NOT NULL REFERENCES integrations(id),
//	  carrier TEXT NOT NULL,
//	  provider_number_id TEXT NOT NULL,
//	  e164 TEXT NOT NULL,
//	  agent_id TEXT NOT NULL DEFAULT '',
//	  enabled BOOLEAN NOT NULL DEFAULT TRUE,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL,
//	  UNIQUE (integration_id, provider_number_id)
//	);
//	CREATE UNIQUE INDEX bindings_one_enabled_per_e164
//	  ON bindings (e164) WHERE enabled;
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const integrationColumns = `id, carrier, name, sealed_credentials, fingerprint, status, trunk_id, created_at, updated_at`

func scanIntegration(row interface{ Scan(...any) error }) (Integration, error) {
	var in Integration
	err := row.Scan(
		&in.ID, &in.Carrier, &in.Name, &in.SealedCredentials, &in.Fingerprint,
		&in.Status, &in.TrunkID, &in.CreatedAt, &in.UpdatedAt,
	)
	return in, err
}

func (s *PostgresStore) CreateIntegration(ctx context.Context, in Integration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integrations (`+integrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.Carrier, in.Name, in.SealedCredentials, in.Fingerprint,
		in.Status, in.TrunkID, in.CreatedAt, in.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetIntegration(ctx context.Context, id string) (Integration, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id)
	in, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Integration{}, false, nil
	}
	if err != nil {
		return Integration{}, false, err
	}
	return in, true, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context, carrierName string) ([]Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations ORDER BY created_at`
	args := []any{}
	if carrierName != "" {
		query = `SELECT ` + integrationColumns + ` FROM integrations WHERE carrier = $1 ORDER BY created_at`
		args = append(args, carrierName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateIntegration(ctx context.Context, in Integration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE integrations
		SET name = $2, status = $3, trunk_id = $4, updated_at = $5
		WHERE id = $1`,
		in.ID, in.Name, in.Status, in.TrunkID, s.clock().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteIntegration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	return err
}

const bindingColumns = `id, integration_id, carrier, provider_number_id, e164, agent_id, enabled, created_at, updated_at`

func scanBinding(row interface{ Scan(...any) error }) (Binding, error) {
	var b Binding
	err := row.Scan(
		&b.ID, &b.IntegrationID, &b.Carrier, &b.ProviderNumberID, &b.E164,
		&b.AgentID, &b.Enabled, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (s *PostgresStore) UpsertBinding(ctx context.Context, b Binding) (Binding, error) {
	now := s.clock().UTC()
	var out Binding
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// The partial unique index on (e164) WHERE enabled is the hard
		// guarantee; this check exists to return the typed error instead
		// of a raw constraint violation.
		if b.Enabled {
			var clash int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM bindings
				WHERE e164 = $1 AND enabled
				  AND NOT (integration_id = $2 AND provider_number_id = $3)`,
				b.E164, b.IntegrationID, b.ProviderNumberID,
			).Scan(&clash)
			if err != nil {
				return err
			}
			if clash > 0 {
				return ErrNumberAlreadyBound
			}
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO bindings (`+bindingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (integration_id, provider_number_id) DO UPDATE
			SET e164 = EXCLUDED.e164, agent_id = EXCLUDED.agent_id,
			    enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
			RETURNING `+bindingColumns,
			b.ID, b.IntegrationID, b.Carrier, b.ProviderNumberID, b.E164,
			b.AgentID, b.Enabled, b.CreatedAt, now,
		)
		stored, err := scanBinding(row)
		if err != nil {
			return err
		}
		out = stored
		return nil
	})
	return out, err
}

func (s *PostgresStore) GetBinding(ctx context.Context, id string) (Binding, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE id = $1`, id)
	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Binding{}, false, nil
	}
	if err != nil {
		return Binding{}, false, err
	}
	return b, true, nil
}

func (s *PostgresStore) GetEnabledBindingByE164(ctx context.Context, e164 string) (Binding, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE e164 = $1 AND enabled`, e164)
	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Binding{}, false, nil
	}
	if err != nil {
		return Binding{}, false, err
	}
	return b, true, nil
}

func (s *PostgresStore) ListBindings(ctx context.Context, integrationID string) ([]Binding, error) {
	return s.listBindings(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE integration_id = $1 ORDER BY created_at`,
		integrationID)
}

func (s *PostgresStore) ListAllBindings(ctx context.Context) ([]Binding, error) {
	return s.listBindings(ctx,
		`SELECT `+bindingColumns+` FROM bindings ORDER BY created_at`)
}

func (s *PostgresStore) listBindings(ctx context.Context, query string, args ...any) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteBinding(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE id = $1`, id)
	return err
}
