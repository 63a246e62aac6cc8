// Package local はPostgreSQLのcredentialsテーブルとbcryptによる
// 自己完結型のidentity.Provider実装を提供する。
// 外部IdPを用意できない開発環境やセルフホスト向けに使う。
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/laptrack/internal/identity"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

// Provider はローカルIdP。
type Provider struct {
	creds  repository.CredentialRepository
	google *GoogleVerifier
	cost   int
}

// NewProvider はProviderを生成する。googleがnilの場合Googleサインインは常に拒否される。
func NewProvider(creds repository.CredentialRepository, google *GoogleVerifier) *Provider {
	return &Provider{creds: creds, google: google, cost: bcrypt.DefaultCost}
}

// CreateUser はパスワード付きのアカウントを作成する。
func (p *Provider) CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))

	existing, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, identity.ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	cred := &model.Credential{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Username:     params.Metadata.Username,
		FirstName:    params.Metadata.FirstName,
		LastName:     params.Metadata.LastName,
		AvatarURL:    params.Metadata.AvatarURL,
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, identity.ErrEmailExists
		}
		return nil, err
	}
	return toIdentityUser(cred), nil
}

// SignIn はbcryptハッシュでパスワードを照合する。
// パスワード未設定（Googleのみ）のアカウントはErrInvalidCredentialsを返す。
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	cred, err := p.creds.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.PasswordHash == "" {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return toIdentityUser(cred), nil
}

// GetUser はIDでアカウントを取得する。
func (p *Provider) GetUser(ctx context.Context, id string) (*identity.User, error) {
	cred, err := p.creds.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, identity.ErrUserNotFound
	}
	return toIdentityUser(cred), nil
}

// GetUserByAccessToken はGoogleアクセストークンを検証し、対応するアカウントを返す。
// 同じメールアドレスのアカウントが無い場合はパスワード無しで作成する。
func (p *Provider) GetUserByAccessToken(ctx context.Context, accessToken string) (*identity.User, error) {
	if p.google == nil || accessToken == "" {
		return nil, identity.ErrInvalidAccessToken
	}

	// 1. Googleでトークンを検証
	info, err := p.google.FetchUserInfo(ctx, accessToken)
	if errors.Is(err, errGoogleTokenRejected) {
		return nil, identity.ErrInvalidAccessToken
	}
	if err != nil {
		return nil, err
	}

	// 2. メールアドレスで既存アカウントを検索
	email := strings.ToLower(info.Email)
	cred, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	// 3. 無ければ作成。同時作成で競合した場合は再検索する
	if cred == nil {
		cred = &model.Credential{
			ID:        uuid.New().String(),
			Email:     email,
			AvatarURL: info.Picture,
		}
		if err := p.creds.Create(ctx, cred); err != nil {
			if !errors.Is(err, repository.ErrDuplicateEmail) {
				return nil, err
			}
			cred, err = p.creds.FindByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if cred == nil {
				return nil, fmt.Errorf("credential for %s vanished after duplicate create", email)
			}
		}
	}

	user := toIdentityUser(cred)
	user.Metadata.FullName = info.Name
	if info.Picture != "" {
		user.Metadata.AvatarURL = info.Picture
	}
	return user, nil
}

// UpdateUser はパスワードまたはメタデータを更新する。
func (p *Provider) UpdateUser(ctx context.Context, id string, params identity.UpdateUserParams) (*identity.User, error) {
	cred, err := p.creds.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, identity.ErrUserNotFound
	}

	if params.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), p.cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		cred.PasswordHash = string(hash)
	}
	if params.Metadata != nil {
		cred.Username = params.Metadata.Username
		cred.FirstName = params.Metadata.FirstName
		cred.LastName = params.Metadata.LastName
		if params.Metadata.AvatarURL != "" {
			cred.AvatarURL = params.Metadata.AvatarURL
		}
	}

	if err := p.creds.Update(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return toIdentityUser(cred), nil
}

// ListUsers はアカウントをページ単位で返す。pageは1始まり。
func (p *Provider) ListUsers(ctx context.Context, page, perPage int) ([]*identity.User, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	creds, err := p.creds.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	users := make([]*identity.User, len(creds))
	for i, c := range creds {
		users[i] = toIdentityUser(c)
	}
	return users, nil
}

func toIdentityUser(c *model.Credential) *identity.User {
	return &identity.User{
		ID:    c.ID,
		Email: c.Email,
		Metadata: identity.Metadata{
			Username:  c.Username,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			AvatarURL: c.AvatarURL,
		},
	}
}

// compile-time interface check
var _ identity.Provider = (*Provider)(nil)
