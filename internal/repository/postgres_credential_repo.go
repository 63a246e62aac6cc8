package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/laptrack/internal/model"
)

const credentialColumns = `id, email, password_hash, username, first_name, last_name, avatar_url, created_at, updated_at`

// PostgresCredentialRepo はPostgreSQLを使用したローカルIdP認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	c := &model.Credential{}
	var hash sql.NullString
	if err := row.Scan(
		&c.ID, &c.Email, &hash, &c.Username, &c.FirstName, &c.LastName, &c.AvatarURL,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.PasswordHash = hash.String
	return c, nil
}

// FindByID は指定IDの認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByID(ctx context.Context, id string) (*model.Credential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by ID: %w", err)
	}
	return c, nil
}

// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE lower(email) = lower($1)`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by email: %w", err)
	}
	return c, nil
}

// Create は認証情報を作成する。
func (r *PostgresCredentialRepo) Create(ctx context.Context, c *model.Credential) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO credentials (id, email, password_hash, username, first_name, last_name, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, now(), now())
		 RETURNING created_at, updated_at`,
		c.ID, c.Email, c.PasswordHash, c.Username, c.FirstName, c.LastName, c.AvatarURL,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", translateUniqueViolation(err))
	}
	return nil
}

// Update はパスワードハッシュとメタデータを更新する。
func (r *PostgresCredentialRepo) Update(ctx context.Context, c *model.Credential) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET
		   password_hash = NULLIF($2, ''), username = $3, first_name = $4, last_name = $5,
		   avatar_url = $6, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.PasswordHash, c.Username, c.FirstName, c.LastName, c.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return requireAffected(result)
}

// List は認証情報を作成日時順にページングして返す。
func (r *PostgresCredentialRepo) List(ctx context.Context, limit, offset int) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return creds, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
