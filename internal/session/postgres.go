package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id              UUID PRIMARY KEY,
	status          TEXT NOT NULL,
	progress        INT NOT NULL DEFAULT 0,
	job_id          TEXT NOT NULL DEFAULT '',
	audio_source    JSONB NOT NULL,
	options         JSONB NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	result          JSONB,
	segments        JSONB,
	intelligence    JSONB,
	created_at      BIGINT NOT NULL,
	last_updated_at BIGINT NOT NULL
);

-- At most one non-terminal session at a time; the supersede step in the
-- orchestrator retires the previous one before a new insert.
CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active
	ON sessions ((1)) WHERE status IN ('starting', 'processing');
`

const sessionColumns = `id, status, progress, job_id, audio_source, options, error,
	result, segments, intelligence, created_at, last_updated_at`

// PostgresStore persists sessions in Postgres so they survive restarts and
// the one-active-session invariant is enforced by the store itself.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// ConnectPostgres opens a pool, verifies connectivity, and applies the schema.
func ConnectPostgres(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply sessions schema: %w", err)
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("session store connected")

	return &PostgresStore{pool: pool, log: log}, nil
}

// HealthCheck pings the pool with a short deadline.
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.log.Info().Msg("closing session store pool")
	p.pool.Close()
}

func (p *PostgresStore) Create(ctx context.Context, opts Options, src AudioSource) (*Session, error) {
	now := time.Now().UnixMilli()
	s := &Session{
		ID:            uuid.NewString(),
		Status:        StatusStarting,
		AudioSource:   src,
		Options:       opts,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	srcJSON, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal audio source: %w", err)
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO sessions (id, status, progress, job_id, audio_source, options, error, created_at, last_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, string(s.Status), s.Progress, s.JobID, srcJSON, optsJSON, s.Error, s.CreatedAt, s.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return s, nil
}

func (p *PostgresStore) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	applyPatch(s, patch, time.Now().UnixMilli())

	resultJSON, segmentsJSON, intelJSON, err := marshalOptionals(s)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET status = $2, progress = $3, job_id = $4, error = $5,
			result = $6, segments = $7, intelligence = $8, last_updated_at = $9
		 WHERE id = $1`,
		s.ID, string(s.Status), s.Progress, s.JobID, s.Error,
		resultJSON, segmentsJSON, intelJSON, s.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return s, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (p *PostgresStore) GetAll(ctx context.Context) ([]*Session, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetActive(ctx context.Context) (*Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status IN ('starting', 'processing')
		 ORDER BY created_at DESC LIMIT 1`)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s            Session
		status       string
		srcJSON      []byte
		optsJSON     []byte
		resultJSON   []byte
		segmentsJSON []byte
		intelJSON    []byte
	)
	err := row.Scan(&s.ID, &status, &s.Progress, &s.JobID, &srcJSON, &optsJSON,
		&s.Error, &resultJSON, &segmentsJSON, &intelJSON, &s.CreatedAt, &s.LastUpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)

	if err := json.Unmarshal(srcJSON, &s.AudioSource); err != nil {
		return nil, fmt.Errorf("decode audio source: %w", err)
	}
	if err := json.Unmarshal(optsJSON, &s.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &s.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	if segmentsJSON != nil {
		if err := json.Unmarshal(segmentsJSON, &s.Segments); err != nil {
			return nil, fmt.Errorf("decode segments: %w", err)
		}
	}
	if intelJSON != nil {
		if err := json.Unmarshal(intelJSON, &s.Intelligence); err != nil {
			return nil, fmt.Errorf("decode intelligence: %w", err)
		}
	}
	return &s, nil
}

func marshalOptionals(s *Session) (result, segments, intelligence []byte, err error) {
	if s.Result != nil {
		if result, err = json.Marshal(s.Result); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal result: %w", err)
		}
	}
	if s.Segments != nil {
		if segments, err = json.Marshal(s.Segments); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal segments: %w", err)
		}
	}
	if s.Intelligence != nil {
		if intelligence, err = json.Marshal(s.Intelligence); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal intelligence: %w", err)
		}
	}
	return result, segments, intelligence, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
