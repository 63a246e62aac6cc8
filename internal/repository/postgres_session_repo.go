package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/laptrack/internal/model"
)

const sessionColumns = `id, title, description, date, duration, distance, workout_type, stroke, intensity, user_id, team_id, created_at, updated_at`

// PostgresSessionRepo はPostgreSQLを使用した練習記録リポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var (
		description, workoutType, stroke, intensity, teamID sql.NullString
		distance                                            sql.NullInt64
	)
	if err := row.Scan(
		&s.ID, &s.Title, &description, &s.Date, &s.Duration, &distance,
		&workoutType, &stroke, &intensity, &s.UserID, &teamID, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		s.Description = &description.String
	}
	if distance.Valid {
		d := int(distance.Int64)
		s.Distance = &d
	}
	if workoutType.Valid {
		w := model.WorkoutType(workoutType.String)
		s.WorkoutType = &w
	}
	if stroke.Valid {
		st := model.Stroke(stroke.String)
		s.Stroke = &st
	}
	if intensity.Valid {
		i := model.Intensity(intensity.String)
		s.Intensity = &i
	}
	if teamID.Valid {
		s.TeamID = &teamID.String
	}
	return s, nil
}

func scanSessions(rows *sql.Rows) ([]*model.Session, error) {
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Create は練習記録を作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, title, description, date, duration, distance, workout_type, stroke, intensity, user_id, team_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		 RETURNING created_at, updated_at`,
		s.ID, s.Title, s.Description, s.Date, s.Duration, s.Distance,
		s.WorkoutType, s.Stroke, s.Intensity, s.UserID, s.TeamID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByIDAndUser は所有者の練習記録を取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// ListByUser は所有者の練習記録をdate降順で返す。
func (r *PostgresSessionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1
		 ORDER BY date DESC, created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return scanSessions(rows)
}

// Update は所有者の練習記録を上書き更新する。
func (r *PostgresSessionRepo) Update(ctx context.Context, s *model.Session) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE sessions SET
		   title = $3, description = $4, date = $5, duration = $6, distance = $7,
		   workout_type = $8, stroke = $9, intensity = $10, team_id = $11, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING updated_at`,
		s.ID, s.UserID, s.Title, s.Description, s.Date, s.Duration, s.Distance,
		s.WorkoutType, s.Stroke, s.Intensity, s.TeamID,
	).Scan(&s.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByIDAndUser は所有者の練習記録を削除する。
func (r *PostgresSessionRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
