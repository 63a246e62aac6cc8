package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/laptrack/internal/model"
)

const teamColumns = `id, name, description, avatar, invite_code, created_at, updated_at`

// PostgresTeamRepo はPostgreSQLを使用したチームリポジトリ。
type PostgresTeamRepo struct {
	db *sql.DB
}

// NewPostgresTeamRepo はPostgresTeamRepoを生成する。
func NewPostgresTeamRepo(db *sql.DB) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

func scanTeam(row rowScanner) (*model.Team, error) {
	team := &model.Team{}
	var description, avatar sql.NullString
	if err := row.Scan(
		&team.ID, &team.Name, &description, &avatar, &team.InviteCode, &team.CreatedAt, &team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		team.Description = &description.String
	}
	if avatar.Valid {
		team.Avatar = &avatar.String
	}
	return team, nil
}

// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
func (r *PostgresTeamRepo) FindByID(ctx context.Context, id string) (*model.Team, error) {
	team, err := scanTeam(r.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by ID: %w", err)
	}
	return team, nil
}

// FindByInviteCode は招待コードでチームを検索する。見つからない場合はnilを返す。
func (r *PostgresTeamRepo) FindByInviteCode(ctx context.Context, code string) (*model.Team, error) {
	team, err := scanTeam(r.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE invite_code = $1`, code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by invite code: %w", err)
	}
	return team, nil
}

// CreateWithCaptain はチームを作成し、作成者をキャプテンとして同一トランザクションで所属させる。
func (r *PostgresTeamRepo) CreateWithCaptain(ctx context.Context, team *model.Team, captainID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// チームを作成
	err = tx.QueryRowContext(ctx,
		`INSERT INTO teams (id, name, description, avatar, invite_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING created_at, updated_at`,
		team.ID, team.Name, team.Description, team.Avatar, team.InviteCode,
	).Scan(&team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", translateUniqueViolation(err))
	}

	// 作成者をキャプテンとして所属させる
	if err := assignTeam(ctx, tx, captainID, team.ID, model.RoleCaptain); err != nil {
		if errors.Is(err, ErrAlreadyInTeam) {
			return ErrAlreadyInTeam
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ TeamRepository = (*PostgresTeamRepo)(nil)
