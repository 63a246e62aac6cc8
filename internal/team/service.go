// Package team はチーム所属の状態遷移（未所属・メンバー・キャプテン）を管理する。
package team

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

const (
	// InviteCodeLength は招待コードの文字数。
	InviteCodeLength = 8
	// inviteCodeAlphabet は紛らわしい文字（I, O, 0, 1）を除いた英大文字と数字。
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// maxInviteCodeAttempts は招待コード衝突時の最大試行回数。
	maxInviteCodeAttempts = 3

	maxNameLength        = 100
	maxDescriptionLength = 500
)

// Sanitizer は自由記述テキストからマークアップを除去する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// URLValidator は利用者が指定したURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// CreateInput はチーム作成の入力。
type CreateInput struct {
	Name        string
	Description *string
	Avatar      *string
}

// View はチームと所属メンバーの一覧。
type View struct {
	Team    *model.Team
	Members []*model.User
}

// Service はチーム所属の状態遷移を提供する。
type Service struct {
	teamRepo  repository.TeamRepository
	userRepo  repository.UserRepository
	sanitizer Sanitizer
	urls      URLValidator

	// newInviteCode はテストで差し替え可能な招待コード生成関数。
	newInviteCode func() (string, error)
}

// NewService はServiceを生成する。
func NewService(
	teamRepo repository.TeamRepository,
	userRepo repository.UserRepository,
	sanitizer Sanitizer,
	urls URLValidator,
) *Service {
	return &Service{
		teamRepo:      teamRepo,
		userRepo:      userRepo,
		sanitizer:     sanitizer,
		urls:          urls,
		newInviteCode: GenerateInviteCode,
	}
}

// GenerateInviteCode は暗号論的乱数で招待コードを生成する。
func GenerateInviteCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(inviteCodeAlphabet)))
	b := make([]byte, InviteCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate invite code: %w", err)
		}
		b[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeInviteCode は招待コードの前後の空白を除去し大文字化する。
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create はチームを作成し、作成者をキャプテンにする。未所属のユーザーのみ実行できる。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Team, error) {
	// 1. 入力検証
	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewValidationError("team name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, model.NewValidationError("team name must be at most 100 characters")
	}
	var description, avatar *string
	if in.Description != nil {
		d := s.sanitizer.Sanitize(*in.Description)
		if len([]rune(d)) > maxDescriptionLength {
			return nil, model.NewValidationError("team description must be at most 500 characters")
		}
		if d != "" {
			description = &d
		}
	}
	if in.Avatar != nil {
		a := strings.TrimSpace(*in.Avatar)
		if a != "" {
			if err := s.urls.ValidateURL(a); err != nil {
				return nil, model.NewValidationError("avatar must be an absolute public http(s) URL")
			}
			avatar = &a
		}
	}

	// 2. 作成者の状態確認
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasTeam() {
		return nil, model.NewAlreadyInTeamError()
	}

	// 3. 招待コードが衝突した場合は再生成して作成
	for attempt := 1; attempt <= maxInviteCodeAttempts; attempt++ {
		code, err := s.newInviteCode()
		if err != nil {
			return nil, err
		}
		team := &model.Team{
			ID:          uuid.New().String(),
			Name:        name,
			Description: description,
			Avatar:      avatar,
			InviteCode:  code,
		}

		err = s.teamRepo.CreateWithCaptain(ctx, team, userID)
		switch {
		case err == nil:
			slog.Info("team created",
				slog.String("team_id", team.ID),
				slog.String("user_id", userID),
			)
			return team, nil
		case errors.Is(err, repository.ErrDuplicateInviteCode):
			slog.Warn("invite code collision",
				slog.String("user_id", userID),
				slog.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, repository.ErrAlreadyInTeam):
			return nil, model.NewAlreadyInTeamError()
		default:
			return nil, fmt.Errorf("failed to create team: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to allocate a unique invite code after %d attempts", maxInviteCodeAttempts)
}

// Join は招待コードでチームに参加する。未所属のユーザーのみ実行できる。
func (s *Service) Join(ctx context.Context, userID, inviteCode string) (*model.Team, error) {
	code := NormalizeInviteCode(inviteCode)
	if code == "" {
		return nil, model.NewValidationError("inviteCode is required")
	}

	team, err := s.teamRepo.FindByInviteCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	if team == nil {
		return nil, model.NewTeamNotFoundError()
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasTeam() {
		return nil, model.NewAlreadyInTeamError()
	}

	// 同時の参加・作成とは条件付き更新で排他する
	if err := s.userRepo.AssignTeam(ctx, userID, team.ID, model.RoleMember); err != nil {
		if errors.Is(err, repository.ErrAlreadyInTeam) {
			return nil, model.NewAlreadyInTeamError()
		}
		return nil, fmt.Errorf("failed to join team: %w", err)
	}

	slog.Info("team joined",
		slog.String("team_id", team.ID),
		slog.String("user_id", userID),
	)
	return team, nil
}

// Leave はチームから脱退する。
// 他のメンバーがいるチームの唯一のキャプテンは脱退できない。
func (s *Service) Leave(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasTeam() {
		return model.NewNotInTeamError()
	}
	teamID := *user.TeamID

	// キャプテン人数の確認と解除は同じ条件付き更新で行う
	if err := s.userRepo.ClearTeam(ctx, userID); err != nil {
		switch {
		case errors.Is(err, repository.ErrLastCaptain):
			return model.NewInvariantViolationError("promote another member to captain before leaving")
		case errors.Is(err, repository.ErrNotFound):
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to leave team: %w", err)
	}

	slog.Info("team left",
		slog.String("team_id", teamID),
		slog.String("user_id", userID),
	)
	return nil
}

// GetMine は所属チームとメンバー一覧を返す。
func (s *Service) GetMine(ctx context.Context, userID string) (*View, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasTeam() {
		return nil, model.NewNotInTeamError()
	}

	team, err := s.teamRepo.FindByID(ctx, *user.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	if team == nil {
		return nil, model.NewTeamNotFoundError()
	}

	members, err := s.userRepo.ListByTeam(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return &View{Team: team, Members: members}, nil
}

// SetMemberRole はキャプテンが同じチームのメンバーの役割を変更する。
// 他のメンバーがいるチームで最後のキャプテンを降格することはできない。
func (s *Service) SetMemberRole(ctx context.Context, callerID, targetID string, role model.Role) (*model.User, error) {
	if role != model.RoleCaptain && role != model.RoleMember {
		return nil, model.NewValidationError("role must be CAPTAIN or MEMBER")
	}

	caller, err := s.findUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.HasTeam() {
		return nil, model.NewNotInTeamError()
	}
	teamID := *caller.TeamID
	if !caller.IsCaptainOf(teamID) {
		return nil, model.NewForbiddenError("only a captain can change member roles")
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if target == nil || !target.SharesTeamWith(caller) {
		return nil, model.NewUserNotFoundError()
	}
	if target.Role == role {
		return target, nil
	}

	if target.Role == model.RoleCaptain && role == model.RoleMember {
		if err := s.guardLastCaptain(ctx, teamID, "a team with other members needs at least one captain"); err != nil {
			return nil, err
		}
	}

	if err := s.userRepo.SetRole(ctx, targetID, teamID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to set role: %w", err)
	}

	target.Role = role
	slog.Info("member role changed",
		slog.String("team_id", teamID),
		slog.String("user_id", targetID),
		slog.String("role", string(role)),
		slog.String("by", callerID),
	)
	return target, nil
}

// guardLastCaptain はキャプテンが1人以下で他のメンバーがいる場合にInvariantViolationを返す。
func (s *Service) guardLastCaptain(ctx context.Context, teamID, reason string) error {
	members, captains, err := s.userRepo.CountByTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to count team members: %w", err)
	}
	if captains <= 1 && members > 1 {
		return model.NewInvariantViolationError(reason)
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
