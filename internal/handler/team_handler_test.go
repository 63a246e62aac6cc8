package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/team"
)

func sampleTeam() *model.Team {
	return &model.Team{
		ID:         "team-1",
		Name:       "Sharks",
		InviteCode: "ABCD2345",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func teamMember(id, username string, role model.Role) *model.User {
	teamID := "team-1"
	return &model.User{ID: id, Email: id + "@example.com", Username: username, TeamID: &teamID, Role: role}
}

func TestTeamHandler_GetMine(t *testing.T) {
	svc := &mockTeamService{
		getMineFn: func(ctx context.Context, userID string) (*team.View, error) {
			return &team.View{
				Team: sampleTeam(),
				Members: []*model.User{
					teamMember("u-1", "captain", model.RoleCaptain),
					teamMember("u-2", "member", model.RoleMember),
				},
			}, nil
		},
	}
	h := NewTeamHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.GetMine(w, withUserID(httptest.NewRequest(http.MethodGet, "/teams", nil), "u-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "@example.com") {
		t.Error("member list must not expose email addresses")
	}
	body := decodeBody(t, w)
	tm, _ := body["team"].(map[string]any)
	if tm["inviteCode"] != "ABCD2345" {
		t.Errorf("team = %v", tm)
	}
	members, _ := body["members"].([]any)
	if len(members) != 2 || members[0].(map[string]any)["role"] != "CAPTAIN" {
		t.Errorf("members = %v", members)
	}
}

func TestTeamHandler_GetMine_NotInTeam(t *testing.T) {
	h := NewTeamHandler(&mockTeamService{}, &mockStats{})

	w := httptest.NewRecorder()
	h.GetMine(w, withUserID(httptest.NewRequest(http.MethodGet, "/teams", nil), "u-1"))

	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeNotInTeam)
}

func TestTeamHandler_Create(t *testing.T) {
	var got team.CreateInput
	svc := &mockTeamService{
		createFn: func(ctx context.Context, userID string, in team.CreateInput) (*model.Team, error) {
			got = in
			if userID == "busy" {
				return nil, model.NewAlreadyInTeamError()
			}
			return sampleTeam(), nil
		},
	}
	h := NewTeamHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.Create(w, withUserID(httptest.NewRequest(http.MethodPost, "/teams",
		strings.NewReader(`{"name":"Sharks","description":"masters squad"}`)), "u-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Name != "Sharks" || got.Description == nil || *got.Description != "masters squad" || got.Avatar != nil {
		t.Errorf("input = %+v", got)
	}

	w = httptest.NewRecorder()
	h.Create(w, withUserID(httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(`{"name":"Sharks"}`)), "busy"))
	assertErrorCode(t, w, http.StatusConflict, model.ErrCodeAlreadyInTeam)
}

func TestTeamHandler_Join(t *testing.T) {
	var gotCode string
	svc := &mockTeamService{
		joinFn: func(ctx context.Context, userID, inviteCode string) (*model.Team, error) {
			gotCode = inviteCode
			if inviteCode == "UNKNOWN1" {
				return nil, model.NewTeamNotFoundError()
			}
			return sampleTeam(), nil
		},
	}
	h := NewTeamHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.Join(w, withUserID(httptest.NewRequest(http.MethodPost, "/teams/join", strings.NewReader(`{"inviteCode":" abcd2345 "}`)), "u-2"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCode != " abcd2345 " {
		t.Errorf("invite code should reach the service unmodified, got %q", gotCode)
	}

	w = httptest.NewRecorder()
	h.Join(w, withUserID(httptest.NewRequest(http.MethodPost, "/teams/join", strings.NewReader(`{"inviteCode":"UNKNOWN1"}`)), "u-2"))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeTeamNotFound)
}

func TestTeamHandler_Leave(t *testing.T) {
	svc := &mockTeamService{
		leaveFn: func(ctx context.Context, userID string) error {
			if userID == "sole-captain" {
				return model.NewInvariantViolationError("promote another member to captain before leaving")
			}
			return nil
		},
	}
	h := NewTeamHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.Leave(w, withUserID(httptest.NewRequest(http.MethodDelete, "/teams/leave", nil), "u-2"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	h.Leave(w, withUserID(httptest.NewRequest(http.MethodDelete, "/teams/leave", nil), "sole-captain"))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvariantViolation)
}

func TestTeamHandler_Stats(t *testing.T) {
	st := &mockStats{
		getMyTeamStatsFn: func(ctx context.Context, userID string) (*stats.TeamStats, error) {
			return &stats.TeamStats{TeamID: "team-1", Members: 3, TotalSessions: 4, TotalDistance: 9000}, nil
		},
	}
	h := NewTeamHandler(&mockTeamService{}, st)

	w := httptest.NewRecorder()
	h.Stats(w, withUserID(httptest.NewRequest(http.MethodGet, "/teams/stats", nil), "u-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	s, _ := decodeBody(t, w)["stats"].(map[string]any)
	if s["members"] != float64(3) || s["totalDistance"] != float64(9000) {
		t.Errorf("stats = %v", s)
	}
	// 泳法が無い場合もキーはnullとして存在する
	if v, ok := s["mostCommonStroke"]; !ok || v != nil {
		t.Errorf("mostCommonStroke = %v (present=%v), want null", v, ok)
	}
}

func TestTeamHandler_Leaderboard(t *testing.T) {
	var gotPeriod stats.Period
	st := &mockStats{
		getLeaderboardFn: func(ctx context.Context, userID string, period stats.Period) (*stats.Leaderboard, error) {
			gotPeriod = period
			return &stats.Leaderboard{
				TeamID: "team-1",
				Period: period,
				Entries: []stats.LeaderboardEntry{
					{Rank: 1, LeaderboardRow: repository.LeaderboardRow{UserID: "u-2", Username: "fast", Sessions: 3, Distance: 6000}},
					{Rank: 2, LeaderboardRow: repository.LeaderboardRow{UserID: "u-1", Username: "slow", Sessions: 1, Distance: 1000}},
				},
			}, nil
		},
	}
	h := NewTeamHandler(&mockTeamService{}, st)

	w := httptest.NewRecorder()
	h.Leaderboard(w, withUserID(httptest.NewRequest(http.MethodGet, "/teams/leaderboard?period=month", nil), "u-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotPeriod != stats.PeriodMonth {
		t.Errorf("period = %q", gotPeriod)
	}
	body := decodeBody(t, w)
	entries, _ := body["entries"].([]any)
	if body["period"] != "month" || len(entries) != 2 || entries[0].(map[string]any)["username"] != "fast" {
		t.Errorf("body = %v", body)
	}

	w = httptest.NewRecorder()
	h.Leaderboard(w, withUserID(httptest.NewRequest(http.MethodGet, "/teams/leaderboard?period=decade", nil), "u-1"))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

func TestTeamHandler_SetMemberRole(t *testing.T) {
	var gotRole model.Role
	var gotTarget string
	svc := &mockTeamService{
		setMemberRoleFn: func(ctx context.Context, callerID, targetID string, role model.Role) (*model.User, error) {
			if callerID != "captain" {
				return nil, model.NewForbiddenError("only a captain can change member roles")
			}
			gotRole, gotTarget = role, targetID
			return teamMember(targetID, "member", role), nil
		},
	}
	h := NewTeamHandler(svc, &mockStats{})

	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/teams/members/u-2/role",
		strings.NewReader(`{"role":"captain"}`)), "userId", "u-2")
	w := httptest.NewRecorder()
	h.SetMemberRole(w, withUserID(req, "captain"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotRole != model.RoleCaptain || gotTarget != "u-2" {
		t.Errorf("role/target = %q/%q", gotRole, gotTarget)
	}

	req = withChiURLParam(httptest.NewRequest(http.MethodPut, "/teams/members/u-2/role",
		strings.NewReader(`{"role":"CAPTAIN"}`)), "userId", "u-2")
	w = httptest.NewRecorder()
	h.SetMemberRole(w, withUserID(req, "member"))
	assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeForbidden)
}
