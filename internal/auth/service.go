// Package auth はIdPとローカルユーザー表を橋渡しする認証フローを提供する。
// 認証に成功した試行ごとにローカルユーザーを1行だけ特定し、セッショントークンを発行する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/laptrack/internal/identity"
	"github.com/hitoshi/laptrack/internal/metrics"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

// 補正経路のラベル
const (
	pathImplicitLogin = "implicit_login"
	pathEmailMatch    = "email_match"
	pathIDRetry       = "id_retry"
	pathEmailFallback = "email_fallback"
	pathCreated       = "created"
	pathUsernameTaken = "username_suffixed"
)

// TokenIssuer はセッショントークンを発行する。
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Result は認証成功時の結果。
type Result struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
	// ImplicitLogin は登録要求が既存アカウントへのログインとして処理されたことを表す。
	ImplicitLogin bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider identity.Provider
	userRepo repository.UserRepository
	tokens   TokenIssuer
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。collectorがnilの場合は記録しない。
func NewService(
	provider identity.Provider,
	userRepo repository.UserRepository,
	tokens TokenIssuer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		provider: provider,
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  collector,
	}
}

// Register はIdPにアカウントを作成し、ローカルユーザーを作成してトークンを発行する。
// 既にIdPに登録済みで同じパスワードでサインインできる場合はログインとして扱う。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	// 0. 入力の正規化と検証
	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)

	if apiErr := ValidateEmail(email); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := ValidatePassword(in.Password); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := ValidateUsername(username); apiErr != nil {
		return nil, apiErr
	}

	// IdPにアカウントを作る前にユーザー名の重複を確認する
	holder, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if holder != nil && !strings.EqualFold(holder.Email, email) {
		s.metrics.RecordAuthEvent("register", "conflict")
		return nil, model.NewConflictError("username already taken")
	}

	// 1. IdPにアカウントを作成
	pu, err := s.provider.CreateUser(ctx, identity.CreateUserParams{
		Email:          email,
		Password:       in.Password,
		EmailConfirmed: true,
		Metadata: identity.Metadata{
			Username:  username,
			FirstName: firstName,
			LastName:  lastName,
		},
	})

	// 2. 登録済みの場合はサインインを試みる
	if errors.Is(err, identity.ErrEmailExists) {
		return s.implicitLogin(ctx, email, in.Password, &model.User{
			Email:     email,
			Username:  username,
			FirstName: firstName,
			LastName:  lastName,
		})
	}
	if err != nil {
		s.metrics.RecordAuthEvent("register", "failure")
		return nil, fmt.Errorf("failed to create provider user: %w", err)
	}

	// 3. IdPのIDをキーにローカルユーザーを作成
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:        pu.ID,
		Email:     email,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}, repository.UpsertOverwriteUsername)
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		// ユーザー名の制約はメールアドレスより先に評価されるため、
		// 同じメールアドレスとユーザー名の行が別IDで存在する場合もここに来る
		owner, findErr := s.userRepo.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, fmt.Errorf("failed to re-read user by email: %w", findErr)
		}
		if owner == nil || owner.Username != username {
			s.metrics.RecordAuthEvent("register", "conflict")
			return nil, model.NewConflictError("username already taken")
		}
		user, err = s.findByEmailAfterViolation(ctx, "register", pu.ID, email)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrDuplicateEmail):
		// 同じメールアドレスのローカル行が別IDで存在する
		user, err = s.findByEmailAfterViolation(ctx, "register", pu.ID, email)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. トークンを発行
	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAuthEvent("register", "success")
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("provider_id", pu.ID),
	)
	return result, nil
}

// implicitLogin はIdP登録済みのメールアドレスでの登録要求をサインインとして処理する。
func (s *Service) implicitLogin(ctx context.Context, email, password string, candidate *model.User) (*Result, error) {
	pu, err := s.provider.SignIn(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.metrics.RecordAuthEvent("register", "conflict")
		return nil, model.NewEmailAlreadyRegisteredError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign in existing provider user: %w", err)
	}

	candidate.ID = pu.ID
	user, err := s.resolveOrCreate(ctx, "register", pu, candidate)
	if err != nil {
		return nil, err
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	result.ImplicitLogin = true

	s.metrics.RecordReconciliation("register", pathImplicitLogin)
	s.metrics.RecordAuthEvent("register", pathImplicitLogin)
	slog.Info("register resolved as login",
		slog.String("user_id", user.ID),
		slog.String("provider_id", pu.ID),
	)
	return result, nil
}

// Login はメールアドレスとパスワードでIdPにサインインし、トークンを発行する。
// ローカル行が無い場合（IdPとの不整合）はここで作成する。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("email and password are required")
	}

	// 1. IdPでサインイン
	pu, err := s.provider.SignIn(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.metrics.RecordAuthEvent("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	// 2. ローカル行を特定または作成
	user, err := s.resolveOrCreate(ctx, "login", pu, &model.User{
		ID:        pu.ID,
		Email:     NormalizeEmail(pu.Email),
		FirstName: pu.Metadata.FirstName,
		LastName:  pu.Metadata.LastName,
		Avatar:    pu.Metadata.AvatarURL,
	})
	if err != nil {
		return nil, err
	}

	// 3. トークンを発行
	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("login", "success")
	return result, nil
}

// GoogleAuth はIdP経由で取得したGoogleのアクセストークンを検証し、トークンを発行する。
// 既存ユーザーのユーザー名は維持し、氏名とアバターを更新する。
func (s *Service) GoogleAuth(ctx context.Context, accessToken string) (*Result, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, model.NewValidationError("accessToken is required")
	}

	// 1. アクセストークンからプロフィールを取得
	pu, err := s.provider.GetUserByAccessToken(ctx, accessToken)
	if errors.Is(err, identity.ErrInvalidAccessToken) {
		s.metrics.RecordAuthEvent("google", "failure")
		return nil, model.NewUnauthorizedError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify google access token: %w", err)
	}

	email := NormalizeEmail(pu.Email)
	firstName, lastName := SplitFullName(pu.Metadata.FullName)
	if pu.Metadata.FullName == "" {
		firstName, lastName = pu.Metadata.FirstName, pu.Metadata.LastName
	}

	// 2. 新規行の場合に使うユーザー名を決める
	username := ""
	existing, err := s.userRepo.FindByID(ctx, pu.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		username = existing.Username
	} else {
		username, err = s.deriveUsername(ctx, "google", email, pu.ID)
		if err != nil {
			return nil, err
		}
	}

	// 3. IdPのIDをキーにupsert
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:        pu.ID,
		Email:     email,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Avatar:    pu.Metadata.AvatarURL,
	}, repository.UpsertKeepUsername)
	if err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to upsert user: %w", err)
		}
		user, err = s.lookupAfterViolation(ctx, "google", pu.ID, email)
		if err != nil {
			return nil, err
		}
	}

	// 4. トークンを発行
	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("google", "success")
	return result, nil
}

// ChangePassword は現在のパスワードでIdPに再認証し、新しいパスワードに更新する。
// パスワードの照合はIdPのみが行う。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return model.NewValidationError("currentPassword is required")
	}
	if apiErr := ValidatePassword(newPassword); apiErr != nil {
		return apiErr
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	// 1. 現在のパスワードで再認証
	pu, err := s.provider.SignIn(ctx, user.Email, currentPassword)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.metrics.RecordAuthEvent("change_password", "failure")
		return model.NewCurrentPasswordIncorrectError()
	}
	if err != nil {
		return fmt.Errorf("failed to re-authenticate: %w", err)
	}

	// 2. サインインで得たIdPのIDに対してパスワードを更新
	if _, err := s.provider.UpdateUser(ctx, pu.ID, identity.UpdateUserParams{Password: &newPassword}); err != nil {
		return fmt.Errorf("failed to update provider password: %w", err)
	}

	s.metrics.RecordAuthEvent("change_password", "success")
	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

// resolveOrCreate はIdPのユーザーに対応するローカル行を特定し、無ければ作成する。
// IDで検索し、無ければメールアドレスで検索し、それも無ければ作成する。
// 作成が一意制約違反になった場合は1回だけ再検索する。ループはしない。
func (s *Service) resolveOrCreate(ctx context.Context, op string, pu *identity.User, candidate *model.User) (*model.User, error) {
	email := NormalizeEmail(pu.Email)

	// 1. IDで検索
	user, err := s.userRepo.FindByID(ctx, pu.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	if user != nil {
		return user, nil
	}

	// 2. メールアドレスで検索（IDが一致しない既存行）
	user, err = s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user != nil {
		s.metrics.RecordReconciliation(op, pathEmailMatch)
		slog.Warn("local user id differs from provider id",
			slog.String("operation", op),
			slog.String("user_id", user.ID),
			slog.String("provider_id", pu.ID),
		)
		return user, nil
	}

	// 3. 作成。ユーザー名が未指定または使用済みの場合は導出する
	candidate.ID = pu.ID
	candidate.Email = email
	if candidate.Username == "" || s.usernameTaken(ctx, candidate.Username) {
		username, err := s.deriveUsername(ctx, op, email, pu.ID)
		if err != nil {
			return nil, err
		}
		candidate.Username = username
	}

	err = s.userRepo.Create(ctx, candidate)
	if err == nil {
		s.metrics.RecordReconciliation(op, pathCreated)
		slog.Warn("created missing local user for provider account",
			slog.String("operation", op),
			slog.String("user_id", candidate.ID),
		)
		return candidate, nil
	}
	if !repository.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 4. 同時作成と競合した場合は1回だけ再検索
	return s.lookupAfterViolation(ctx, op, pu.ID, email)
}

// lookupAfterViolation は一意制約違反の後にIDとメールアドレスで1回だけ再検索する。
// どちらでも見つからない場合は内部エラーを返す。
func (s *Service) lookupAfterViolation(ctx context.Context, op, providerID, email string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read user by ID: %w", err)
	}
	if user != nil {
		s.metrics.RecordReconciliation(op, pathIDRetry)
		return user, nil
	}
	return s.findByEmailAfterViolation(ctx, op, providerID, email)
}

// findByEmailAfterViolation はメールアドレスの一意制約違反の後にメールアドレスで再検索する。
func (s *Service) findByEmailAfterViolation(ctx context.Context, op, providerID, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read user by email: %w", err)
	}
	if user == nil {
		slog.Error("user not available after authentication",
			slog.String("operation", op),
			slog.String("provider_id", providerID),
		)
		return nil, model.NewInternalError("user not available after authentication")
	}

	s.metrics.RecordReconciliation(op, pathEmailFallback)
	slog.Warn("resolved local user by email after unique violation",
		slog.String("operation", op),
		slog.String("user_id", user.ID),
		slog.String("provider_id", providerID),
	)
	return user, nil
}

// deriveUsername はメールアドレスのローカル部からユーザー名を導出する。
// 使用済みの場合は"_"とプロバイダーIDの先頭6文字を付ける。
func (s *Service) deriveUsername(ctx context.Context, op, email, providerID string) (string, error) {
	base := usernameBase(email)
	holder, err := s.userRepo.FindByUsername(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to check username: %w", err)
	}
	if holder == nil {
		return base, nil
	}
	s.metrics.RecordReconciliation(op, pathUsernameTaken)
	return base + "_" + usernameSuffix(providerID), nil
}

// usernameTaken はユーザー名が既に使われているかを返す。検索失敗時は使用済みとみなす。
func (s *Service) usernameTaken(ctx context.Context, username string) bool {
	holder, err := s.userRepo.FindByUsername(ctx, username)
	return err != nil || holder != nil
}

// issue はユーザーに紐付くトークンを発行する。
func (s *Service) issue(user *model.User) (*Result, error) {
	tok, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Result{Token: tok, ExpiresAt: expiresAt, User: user}, nil
}
