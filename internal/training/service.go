// Package training は練習記録の作成・参照・更新・削除を提供する。
// すべての操作は所有者のユーザーIDで絞り込まれる。
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

const (
	// DefaultListLimit は一覧取得のデフォルト件数。
	DefaultListLimit = 50
	// MaxListLimit は一覧取得の最大件数。
	MaxListLimit = 100

	maxTitleLength       = 100
	maxDescriptionLength = 1000
)

// Sanitizer は自由記述テキストからマークアップを除去する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Input は練習記録の作成・更新の入力。
// 更新時はnilのフィールドを変更しない。DescriptionとDistanceは空文字・負値ではなくnullで解除する。
type Input struct {
	Title       *string
	Description *string
	Date        *string // RFC 3339
	Duration    *int
	Distance    *int
	WorkoutType *string
	Stroke      *string
	Intensity   *string
	TeamID      *string
}

// Service は所有者スコープの練習記録ストア。
type Service struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	sanitizer   Sanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(sessionRepo repository.SessionRepository, userRepo repository.UserRepository, sanitizer Sanitizer) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Create は練習記録を作成する。
// teamIDを省略した場合は所有者の現在の所属チームで帰属を記録する。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Session, error) {
	if in.Title == nil {
		return nil, model.NewValidationError("title is required")
	}
	if in.Date == nil {
		return nil, model.NewValidationError("date is required")
	}
	if in.Duration == nil {
		return nil, model.NewValidationError("duration is required")
	}

	session := &model.Session{
		ID:     uuid.New().String(),
		UserID: userID,
	}
	if apiErr := s.apply(session, in); apiErr != nil {
		return nil, apiErr
	}

	teamID, apiErr := s.resolveTeam(ctx, userID, in.TeamID)
	if apiErr != nil {
		return nil, apiErr
	}
	session.TeamID = teamID

	now := s.now()
	session.CreatedAt = now
	session.UpdatedAt = now

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("練習記録の作成に失敗しました: %w", err)
	}

	slog.Info("session created",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)
	return session, nil
}

// List は所有者の練習記録をdate降順で返す。
// limitが0以下の場合はDefaultListLimit、MaxListLimitを超える場合はMaxListLimitに丸める。
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessionRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("練習記録一覧の取得に失敗しました: %w", err)
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, nil
}

// Get は所有者の練習記録を返す。他のユーザーの記録はNotFoundとして扱う。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("練習記録の取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(id)
	}
	return session, nil
}

// Update は所有者の練習記録を部分更新する。
func (s *Service) Update(ctx context.Context, userID, id string, patch Input) (*model.Session, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if apiErr := s.apply(session, patch); apiErr != nil {
		return nil, apiErr
	}
	if patch.TeamID != nil {
		teamID, apiErr := s.resolveTeam(ctx, userID, patch.TeamID)
		if apiErr != nil {
			return nil, apiErr
		}
		session.TeamID = teamID
	}
	session.UpdatedAt = s.now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewSessionNotFoundError(id)
		}
		return nil, fmt.Errorf("練習記録の更新に失敗しました: %w", err)
	}

	slog.Info("session updated",
		slog.String("session_id", id),
		slog.String("user_id", userID),
	)
	return session, nil
}

// Delete は所有者の練習記録を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.sessionRepo.DeleteByIDAndUser(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewSessionNotFoundError(id)
		}
		return fmt.Errorf("練習記録の削除に失敗しました: %w", err)
	}

	slog.Info("session deleted",
		slog.String("session_id", id),
		slog.String("user_id", userID),
	)
	return nil
}

// apply は入力を検証し、指定されたフィールドをsessionに反映する。
func (s *Service) apply(session *model.Session, in Input) *model.APIError {
	if in.Title != nil {
		title := s.sanitizer.Sanitize(*in.Title)
		if title == "" {
			return model.NewValidationError("title is required")
		}
		if len([]rune(title)) > maxTitleLength {
			return model.NewValidationError("title must be at most 100 characters")
		}
		session.Title = title
	}

	if in.Description != nil {
		desc := s.sanitizer.Sanitize(*in.Description)
		if len([]rune(desc)) > maxDescriptionLength {
			return model.NewValidationError("description must be at most 1000 characters")
		}
		if desc == "" {
			session.Description = nil
		} else {
			session.Description = &desc
		}
	}

	if in.Date != nil {
		date, err := time.Parse(time.RFC3339, strings.TrimSpace(*in.Date))
		if err != nil {
			return model.NewValidationError("date must be an RFC 3339 timestamp")
		}
		session.Date = date.UTC()
	}

	if in.Duration != nil {
		if *in.Duration <= 0 {
			return model.NewValidationError("duration must be greater than 0")
		}
		session.Duration = *in.Duration
	}

	if in.Distance != nil {
		if *in.Distance < 0 {
			return model.NewValidationError("distance must not be negative")
		}
		d := *in.Distance
		session.Distance = &d
	}

	if in.WorkoutType != nil {
		w := model.WorkoutType(strings.ToUpper(strings.TrimSpace(*in.WorkoutType)))
		if !w.Valid() {
			return model.NewValidationError(fmt.Sprintf("invalid workoutType: %s", *in.WorkoutType))
		}
		session.WorkoutType = &w
	}

	if in.Stroke != nil {
		st := model.Stroke(strings.ToUpper(strings.TrimSpace(*in.Stroke)))
		if !st.Valid() {
			return model.NewValidationError(fmt.Sprintf("invalid stroke: %s", *in.Stroke))
		}
		session.Stroke = &st
	}

	if in.Intensity != nil {
		i := model.Intensity(strings.ToUpper(strings.TrimSpace(*in.Intensity)))
		if !i.Valid() {
			return model.NewValidationError(fmt.Sprintf("invalid intensity: %s", *in.Intensity))
		}
		session.Intensity = &i
	}

	return nil
}

// resolveTeam は練習記録のチーム帰属を決定する。
// 明示指定は所有者の現在の所属チームと一致する必要がある。
func (s *Service) resolveTeam(ctx context.Context, userID string, requested *string) (*string, *model.APIError) {
	owner, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		slog.Error("failed to load session owner",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError("failed to resolve team")
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	if requested == nil || strings.TrimSpace(*requested) == "" {
		if !owner.HasTeam() {
			return nil, nil
		}
		teamID := *owner.TeamID
		return &teamID, nil
	}

	teamID := strings.TrimSpace(*requested)
	if !owner.HasTeam() || *owner.TeamID != teamID {
		return nil, model.NewValidationError("teamId must be your current team")
	}
	return &teamID, nil
}
