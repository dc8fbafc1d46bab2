package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/cheese-challenge/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements UserDirectory, ActivitySource and SettlementArchive.
type Postgres struct {
	db *sql.DB
}

// Open connects with the pool settings used across the service.
func Open(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// EnsureSchema creates the tables this service reads and writes when absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectUsers = `
		SELECT id, nickname, profile_image, birth_date, gender
		FROM users`

func (p *Postgres) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := p.db.QueryRowContext(ctx, selectUsers+` WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, selectUsers+` WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u      domain.User
		birth  sql.NullTime
		gender string
	)
	if err := s.Scan(&u.ID, &u.Nickname, &u.ProfileImage, &birth, &gender); err != nil {
		return nil, err
	}
	if birth.Valid {
		u.BirthDate = birth.Time
	}
	u.Gender = domain.ParseGender(gender)
	return &u, nil
}

func (p *Postgres) ActivityTimes(ctx context.Context, challengeID, userID string, from, to time.Time) ([]time.Time, error) {
	const query = `
		SELECT submitted_at
		FROM activity_submissions
		WHERE challenge_id = $1
		  AND user_id = $2
		  AND submitted_at BETWEEN $3 AND $4
		  AND verification_status <> $5
		ORDER BY submitted_at`

	rows, err := p.db.QueryContext(ctx, query, challengeID, userID, from, to, VerificationRejected)
	if err != nil {
		return nil, fmt.Errorf("select activity: %w", err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) ArchiveChallenge(ctx context.Context, rec ChallengeSettlement) error {
	achievements, err := json.Marshal(rec.Achievements)
	if err != nil {
		return fmt.Errorf("marshal achievements: %w", err)
	}
	const query = `
		INSERT INTO challenge_settlements (
			challenge_id, title, stake, pool, reward_each,
			participants, succeeded, achievements, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		ON CONFLICT (challenge_id) DO NOTHING`

	_, err = p.db.ExecContext(ctx, query,
		rec.ChallengeID, rec.Title, rec.Stake, rec.Pool, rec.RewardEach,
		pq.Array(nonNil(rec.Participants)), pq.Array(nonNil(rec.Succeeded)), achievements, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert challenge settlement: %w", err)
	}
	return nil
}

func (p *Postgres) ArchiveMission(ctx context.Context, rec MissionSettlement) error {
	const query = `
		INSERT INTO mission_settlements (
			mission_id, title, reward, participants, winners, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mission_id) DO NOTHING`

	_, err := p.db.ExecContext(ctx, query,
		rec.MissionID, rec.Title, rec.Reward, rec.Participants, pq.Array(nonNil(rec.Winners)), rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert mission settlement: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
