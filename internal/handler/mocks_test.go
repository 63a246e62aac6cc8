package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/middleware"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/team"
	"github.com/hitoshi/laptrack/internal/training"
	"github.com/hitoshi/laptrack/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.Result, error)
	googleAuthFn     func(ctx context.Context, accessToken string) (*auth.Result, error)
	changePasswordFn func(ctx context.Context, userID, currentPassword, newPassword string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) GoogleAuth(ctx context.Context, accessToken string) (*auth.Result, error) {
	if m.googleAuthFn != nil {
		return m.googleAuthFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, currentPassword, newPassword)
	}
	return nil
}

type mockProfileService struct {
	getProfileFn    func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, in user.UpdateProfileInput) (*model.User, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID string, in user.UpdateProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return nil, nil
}

type mockTrainingService struct {
	createFn func(ctx context.Context, userID string, in training.Input) (*model.Session, error)
	listFn   func(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error)
	getFn    func(ctx context.Context, userID, id string) (*model.Session, error)
	updateFn func(ctx context.Context, userID, id string, patch training.Input) (*model.Session, error)
	deleteFn func(ctx context.Context, userID, id string) error
}

func (m *mockTrainingService) Create(ctx context.Context, userID string, in training.Input) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockTrainingService) List(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit, offset)
	}
	return []*model.Session{}, nil
}

func (m *mockTrainingService) Get(ctx context.Context, userID, id string) (*model.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewSessionNotFoundError(id)
}

func (m *mockTrainingService) Update(ctx context.Context, userID, id string, patch training.Input) (*model.Session, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, patch)
	}
	return nil, nil
}

func (m *mockTrainingService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

type mockTeamService struct {
	createFn        func(ctx context.Context, userID string, in team.CreateInput) (*model.Team, error)
	joinFn          func(ctx context.Context, userID, inviteCode string) (*model.Team, error)
	leaveFn         func(ctx context.Context, userID string) error
	getMineFn       func(ctx context.Context, userID string) (*team.View, error)
	setMemberRoleFn func(ctx context.Context, callerID, targetID string, role model.Role) (*model.User, error)
}

func (m *mockTeamService) Create(ctx context.Context, userID string, in team.CreateInput) (*model.Team, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockTeamService) Join(ctx context.Context, userID, inviteCode string) (*model.Team, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, userID, inviteCode)
	}
	return nil, nil
}

func (m *mockTeamService) Leave(ctx context.Context, userID string) error {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, userID)
	}
	return nil
}

func (m *mockTeamService) GetMine(ctx context.Context, userID string) (*team.View, error) {
	if m.getMineFn != nil {
		return m.getMineFn(ctx, userID)
	}
	return nil, model.NewNotInTeamError()
}

func (m *mockTeamService) SetMemberRole(ctx context.Context, callerID, targetID string, role model.Role) (*model.User, error) {
	if m.setMemberRoleFn != nil {
		return m.setMemberRoleFn(ctx, callerID, targetID, role)
	}
	return nil, nil
}

type mockStats struct {
	getUserStatsFn         func(ctx context.Context, userID string) (*stats.UserStats, error)
	getMyTeamStatsFn       func(ctx context.Context, userID string) (*stats.TeamStats, error)
	getLeaderboardFn       func(ctx context.Context, userID string, period stats.Period) (*stats.Leaderboard, error)
	getUserPublicProfileFn func(ctx context.Context, requesterID, targetID string) (*stats.PublicProfile, error)
}

func (m *mockStats) GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	if m.getUserStatsFn != nil {
		return m.getUserStatsFn(ctx, userID)
	}
	return &stats.UserStats{}, nil
}

func (m *mockStats) GetMyTeamStats(ctx context.Context, userID string) (*stats.TeamStats, error) {
	if m.getMyTeamStatsFn != nil {
		return m.getMyTeamStatsFn(ctx, userID)
	}
	return nil, model.NewNotInTeamError()
}

func (m *mockStats) GetLeaderboard(ctx context.Context, userID string, period stats.Period) (*stats.Leaderboard, error) {
	if m.getLeaderboardFn != nil {
		return m.getLeaderboardFn(ctx, userID, period)
	}
	return &stats.Leaderboard{Period: period}, nil
}

func (m *mockStats) GetUserPublicProfile(ctx context.Context, requesterID, targetID string) (*stats.PublicProfile, error) {
	if m.getUserPublicProfileFn != nil {
		return m.getUserPublicProfileFn(ctx, requesterID, targetID)
	}
	return nil, model.NewUserNotFoundError()
}

// --- テストヘルパー ---

// withUserID はテスト用に認証済みユーザーIDをコンテキストに注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// assertErrorCode はステータスコードとエラーコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, wantStatus, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["code"] != wantCode {
		t.Errorf("code = %v, want %s", body["code"], wantCode)
	}
	if _, ok := body["error"].(string); !ok {
		t.Errorf("error message missing: %v", body)
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
