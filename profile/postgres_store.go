package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/receipt"
)

// PostgresStore keeps profiles in the printer_profiles table. A partial
// unique index enforces the single default.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// EnsureSchema creates the profile table when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS printer_profiles (
  id text PRIMARY KEY,
  name text NOT NULL,
  kind text NOT NULL,
  address text NOT NULL,
  paper_width integer NOT NULL,
  is_default boolean NOT NULL DEFAULT false,
  last_connected_at timestamptz,
  created_at timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS printer_profiles_one_default
  ON printer_profiles (is_default) WHERE is_default;`)
	return err
}

const profileColumns = `id, name, kind, address, paper_width, is_default, last_connected_at, created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p     Profile
		kind  string
		width int
	)
	err := row.Scan(&p.ID, &p.Name, &kind, &p.Address, &width, &p.IsDefault, &p.LastConnectedAt, &p.CreatedAt)
	if err != nil {
		return Profile{}, err
	}
	p.Kind = adapter.Kind(kind)
	p.PaperWidth = receipt.PaperWidth(width)
	p.CreatedAt = p.CreatedAt.UTC()
	if p.LastConnectedAt != nil {
		t := p.LastConnectedAt.UTC()
		p.LastConnectedAt = &t
	}
	return p, nil
}

func (r *PostgresStore) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+profileColumns+` FROM printer_profiles ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresStore) Get(ctx context.Context, id string) (Profile, error) {
	p, err := scanProfile(r.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM printer_profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

func (r *PostgresStore) Save(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		if p.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE printer_profiles SET is_default = false WHERE is_default AND id <> $1`, p.ID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO printer_profiles(`+profileColumns+`)
        VALUES($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
          name = EXCLUDED.name,
          kind = EXCLUDED.kind,
          address = EXCLUDED.address,
          paper_width = EXCLUDED.paper_width,
          is_default = EXCLUDED.is_default,
          last_connected_at = EXCLUDED.last_connected_at`,
			p.ID, p.Name, string(p.Kind), p.Address, int(p.PaperWidth), p.IsDefault, p.LastConnectedAt, p.CreatedAt)
		return err
	})
}

func (r *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM printer_profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *PostgresStore) SetDefault(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE printer_profiles SET is_default = false WHERE is_default AND id <> $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE printer_profiles SET is_default = true WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

func (r *PostgresStore) Default(ctx context.Context) (Profile, error) {
	p, err := scanProfile(r.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM printer_profiles WHERE is_default LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNoDefault
	}
	return p, err
}

var _ Store = (*PostgresStore)(nil)
