// Package identity は外部IdPの抽象化を定義する。
// IdPはパスワードの唯一の管理者であり、アカウント作成・サインイン・
// OAuthプロフィール取得・管理者更新を提供する。
package identity

import (
	"context"
	"errors"
)

var (
	// ErrEmailExists はメールアドレスが既にIdPに登録されていることを表す。
	ErrEmailExists = errors.New("identity: email already registered")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrUserNotFound はIdPにユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrInvalidAccessToken は外部アクセストークンが無効であることを表す。
	ErrInvalidAccessToken = errors.New("identity: invalid access token")
)

// Metadata はIdPのユーザーに付与するプロフィール情報。
type Metadata struct {
	Username  string
	FirstName string
	LastName  string
	FullName  string
	AvatarURL string
}

// User はIdPが返すユーザー。IDは安定したsubject ID。
type User struct {
	ID       string
	Email    string
	Metadata Metadata
}

// CreateUserParams はアカウント作成のパラメータ。
type CreateUserParams struct {
	Email          string
	Password       string
	EmailConfirmed bool
	Metadata       Metadata
}

// UpdateUserParams は管理者更新のパラメータ。nilのフィールドは変更しない。
type UpdateUserParams struct {
	Password *string
	Metadata *Metadata
}

// Provider はIdPの機能インターフェース。IdPのバージョンごとに1つの実装を持つ。
type Provider interface {
	// CreateUser はアカウントを作成する。登録済みの場合はErrEmailExistsを返す。
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)

	// SignIn はメールアドレスとパスワードで認証する。不一致の場合はErrInvalidCredentialsを返す。
	SignIn(ctx context.Context, email, password string) (*User, error)

	// GetUser はIDでユーザーを取得する。存在しない場合はErrUserNotFoundを返す。
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByAccessToken は外部アクセストークン（Googleサインイン等）を検証しプロフィールを返す。
	// 無効な場合はErrInvalidAccessTokenを返す。
	GetUserByAccessToken(ctx context.Context, accessToken string) (*User, error)

	// UpdateUser は管理者権限でユーザーを更新する。存在しない場合はErrUserNotFoundを返す。
	UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*User, error)

	// ListUsers はユーザーをページ単位で返す。pageは1始まり。
	ListUsers(ctx context.Context, page, perPage int) ([]*User, error)
}
