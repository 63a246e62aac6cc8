// Package user はプロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/identity"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

// URLValidator は利用者が指定したURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// MetadataUpdater はIdP側のユーザーメタデータを更新する。
type MetadataUpdater interface {
	UpdateUser(ctx context.Context, id string, params identity.UpdateUserParams) (*identity.User, error)
}

// UpdateProfileInput はプロフィール更新の入力。nilのフィールドは変更しない。
type UpdateProfileInput struct {
	Username  string
	FirstName *string
	LastName  *string
	Avatar    *string
}

// Service はプロフィール管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	urls     URLValidator
	idp      MetadataUpdater
}

// NewService はServiceの新しいインスタンスを生成する。
// idpがnilの場合はIdPへのメタデータ同期を行わない。
func NewService(userRepo repository.UserRepository, urls URLValidator, idp MetadataUpdater) *Service {
	return &Service{
		userRepo: userRepo,
		urls:     urls,
		idp:      idp,
	}
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はユーザー名、氏名、アバターを更新する。
// 更新後の氏名はIdPのメタデータにも反映するが、失敗してもログのみとする。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	// 1. 入力検証
	username := strings.TrimSpace(in.Username)
	if apiErr := auth.ValidateUsername(username); apiErr != nil {
		return nil, apiErr
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		if avatar != "" {
			if err := s.urls.ValidateURL(avatar); err != nil {
				return nil, model.NewValidationError("avatar must be an absolute public http(s) URL")
			}
		}
		in.Avatar = &avatar
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 2. ユーザー名の重複確認
	if username != user.Username {
		holder, err := s.userRepo.FindByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
		}
		if holder != nil && holder.ID != userID {
			return nil, model.NewUsernameTakenError()
		}
	}

	// 3. 更新
	user.Username = username
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Avatar != nil {
		user.Avatar = *in.Avatar
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, model.NewUsernameTakenError()
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	// 4. IdPへのメタデータ同期（ベストエフォート）
	s.syncMetadata(ctx, user)

	slog.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

func (s *Service) syncMetadata(ctx context.Context, user *model.User) {
	if s.idp == nil {
		return
	}
	_, err := s.idp.UpdateUser(ctx, user.ID, identity.UpdateUserParams{
		Metadata: &identity.Metadata{
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			FullName:  strings.TrimSpace(user.FirstName + " " + user.LastName),
			AvatarURL: user.Avatar,
		},
	})
	if err != nil {
		slog.Warn("failed to sync profile to identity provider",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
