package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/laptrack/internal/model"
)

const userColumns = `id, email, username, first_name, last_name, avatar, team_id, role, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var teamID sql.NullString
	var role string
	if err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName,
		&user.Avatar, &teamID, &role, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if teamID.Valid {
		user.TeamID = &teamID.String
	}
	user.Role = model.Role(role)
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where,
		arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, `lower(email) = lower($1)`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを検索する。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := r.findOne(ctx, `username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	role := user.Role
	if role == "" {
		role = model.RoleMember
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, username, first_name, last_name, avatar, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName, user.Avatar, string(role),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", translateUniqueViolation(err))
	}
	user.Role = role
	return nil
}

// Upsert はIDをキーにユーザーを作成または更新し、保存後の行を返す。
// 氏名は空文字で既存値を消さない。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User, mode UpsertMode) (*model.User, error) {
	stored, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, username, first_name, last_name, avatar, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'MEMBER', now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		   email      = EXCLUDED.email,
		   username   = CASE WHEN $7::boolean THEN EXCLUDED.username ELSE users.username END,
		   first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
		   last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
		   avatar     = COALESCE(NULLIF(EXCLUDED.avatar, ''), users.avatar),
		   updated_at = now()
		 RETURNING `+userColumns,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName, user.Avatar,
		mode == UpsertOverwriteUsername,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", translateUniqueViolation(err))
	}
	return stored, nil
}

// UpdateProfile はユーザー名、氏名、アバターを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET username = $2, first_name = $3, last_name = $4, avatar = $5, updated_at = now()
		 WHERE id = $1`,
		user.ID, user.Username, user.FirstName, user.LastName, user.Avatar,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", translateUniqueViolation(err))
	}
	return requireAffected(result)
}

// ListByTeam はチームの所属ユーザーをユーザー名順に返す。
func (r *PostgresUserRepo) ListByTeam(ctx context.Context, teamID string) ([]*model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE team_id = $1 ORDER BY username`, teamID)
}

// ListAll は全ユーザーを作成日時順に返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

func (r *PostgresUserRepo) list(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// CountByTeam はチームの所属人数とキャプテン人数を返す。
func (r *PostgresUserRepo) CountByTeam(ctx context.Context, teamID string) (int, int, error) {
	var members, captains int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE role = 'CAPTAIN')
		 FROM users WHERE team_id = $1`,
		teamID,
	).Scan(&members, &captains)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count team members: %w", err)
	}
	return members, captains, nil
}

// AssignTeam は未所属のユーザーをチームに所属させる。
// team_id IS NULLを条件に含めるため、同時の参加・作成はどちらか一方のみ成功する。
func (r *PostgresUserRepo) AssignTeam(ctx context.Context, userID, teamID string, role model.Role) error {
	return assignTeam(ctx, r.db, userID, teamID, role)
}

// ClearTeam はユーザーのチーム所属を解除し、roleをMEMBERに戻す。
// チーム行をFOR UPDATEでロックしてから条件付きで更新するため、
// 同時に脱退するキャプテンのうち最後の1人は必ずErrLastCaptainになる。
func (r *PostgresUserRepo) ClearTeam(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var teamID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT team_id FROM users WHERE id = $1`, userID).Scan(&teamID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find user team: %w", err)
	}

	// 同じチームへの脱退を直列化する
	if teamID.Valid {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, teamID.String); err != nil {
			return fmt.Errorf("failed to lock team: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users u SET team_id = NULL, role = 'MEMBER', updated_at = now()
		 WHERE u.id = $1
		   AND (u.team_id IS NULL
		     OR u.role <> 'CAPTAIN'
		     OR NOT EXISTS (SELECT 1 FROM users o WHERE o.team_id = u.team_id AND o.id <> u.id)
		     OR EXISTS (SELECT 1 FROM users o WHERE o.team_id = u.team_id AND o.id <> u.id AND o.role = 'CAPTAIN'))`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear team: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLastCaptain
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetRole は指定チームに所属するユーザーのroleを更新する。
func (r *PostgresUserRepo) SetRole(ctx context.Context, userID, teamID string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $3, updated_at = now() WHERE id = $1 AND team_id = $2`,
		userID, teamID, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return requireAffected(result)
}

// execer は*sql.DBと*sql.Txの共通インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func assignTeam(ctx context.Context, db execer, userID, teamID string, role model.Role) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET team_id = $2, role = $3, updated_at = now()
		 WHERE id = $1 AND team_id IS NULL`,
		userID, teamID, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to assign team: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyInTeam
	}
	return nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
