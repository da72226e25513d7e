package account

import (
	"context"
	"database/sql"
	"fmt"

	"sessionkeeper-go/internal/migrations"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

const accountColumns = `username, password, phone, enabled, status, kind, enterprise, code_mode, voice_mode, webhook_url, force_update`

// PostgresRegistry keeps accounts in the accounts table.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry connects and applies pending migrations.
func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	if err := migrations.Up(ctx, dsn); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	db, err := storage.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresRegistry{db: db}, nil
}

func (r *PostgresRegistry) ListAccounts(ctx context.Context, enterprise string) ([]Account, error) {
	var out []Account
	err := monitoring.TrackStoreOp(ctx, "postgres", "list_accounts", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE ($1 = '' OR enterprise = $1) ORDER BY id`, enterprise)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a Account
			if err := rows.Scan(&a.Username, &a.Password, &a.Phone, &a.Enabled, &a.Status, &a.Kind,
				&a.Enterprise, &a.CodeMode, &a.VoiceMode, &a.WebhookURL, &a.ForceUpdate); err != nil {
				return fmt.Errorf("scan account: %w", err)
			}
			a.normalize(enterprise)
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

func (r *PostgresRegistry) UpdateStatus(ctx context.Context, username string, status Status) error {
	return monitoring.TrackStoreOp(ctx, "postgres", "update_status", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		res, err := r.db.ExecContext(ctx,
			`UPDATE accounts SET status = $2, status_changed_at = now(), updated_at = now() WHERE username = $1`, username, string(status))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, username)
		}
		return nil
	})
}

// Upsert inserts a or replaces the row with the same username.
func (r *PostgresRegistry) Upsert(ctx context.Context, a Account) error {
	a.normalize(a.Enterprise)
	return monitoring.TrackStoreOp(ctx, "postgres", "upsert_account", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (`+accountColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (username) DO UPDATE SET
    password = EXCLUDED.password,
    phone = EXCLUDED.phone,
    enabled = EXCLUDED.enabled,
    status = EXCLUDED.status,
    kind = EXCLUDED.kind,
    enterprise = EXCLUDED.enterprise,
    code_mode = EXCLUDED.code_mode,
    voice_mode = EXCLUDED.voice_mode,
    webhook_url = EXCLUDED.webhook_url,
    force_update = EXCLUDED.force_update,
    updated_at = now()`,
			a.Username, a.Password, a.Phone, a.Enabled, string(a.Status), string(a.Kind),
			a.Enterprise, a.CodeMode, a.VoiceMode, a.WebhookURL, a.ForceUpdate)
		if err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
		return nil
	})
}

func (r *PostgresRegistry) Close() error { return r.db.Close() }
