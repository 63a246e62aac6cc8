package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/team"
)

// TeamServiceInterface はチームハンドラーが必要とするメンバーシップ操作。
type TeamServiceInterface interface {
	Create(ctx context.Context, userID string, in team.CreateInput) (*model.Team, error)
	Join(ctx context.Context, userID, inviteCode string) (*model.Team, error)
	Leave(ctx context.Context, userID string) error
	GetMine(ctx context.Context, userID string) (*team.View, error)
	SetMemberRole(ctx context.Context, callerID, targetID string, role model.Role) (*model.User, error)
}

// TeamStatsProvider はチーム集計とリーダーボードを提供する。
type TeamStatsProvider interface {
	GetMyTeamStats(ctx context.Context, userID string) (*stats.TeamStats, error)
	GetLeaderboard(ctx context.Context, userID string, period stats.Period) (*stats.Leaderboard, error)
}

// TeamHandler はチーム管理のHTTPハンドラー。
type TeamHandler struct {
	service TeamServiceInterface
	stats   TeamStatsProvider
}

// NewTeamHandler はTeamHandlerを生成する。
func NewTeamHandler(service TeamServiceInterface, statsProvider TeamStatsProvider) *TeamHandler {
	return &TeamHandler{
		service: service,
		stats:   statsProvider,
	}
}

type createTeamRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

type joinTeamRequest struct {
	InviteCode string `json:"inviteCode"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type teamEnvelope struct {
	Team teamResponse `json:"team"`
}

type teamViewResponse struct {
	Team    teamResponse         `json:"team"`
	Members []publicUserResponse `json:"members"`
}

type teamStatsEnvelope struct {
	Stats teamStatsResponse `json:"stats"`
}

type leaderboardResponse struct {
	Period  stats.Period               `json:"period"`
	Entries []leaderboardEntryResponse `json:"entries"`
}

type publicUserEnvelope struct {
	User publicUserResponse `json:"user"`
}

// GetMine は所属チームとメンバー一覧を返す。
// GET /teams
func (h *TeamHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, "get_team", err)
		return
	}

	resp := teamViewResponse{
		Team:    toTeamResponse(view.Team),
		Members: make([]publicUserResponse, 0, len(view.Members)),
	}
	for _, m := range view.Members {
		resp.Members = append(resp.Members, toPublicUserResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はチームを作成し、呼び出し元をキャプテンにする。
// POST /teams
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Create(r.Context(), userID, team.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		handleServiceError(w, r, "create_team", err)
		return
	}
	writeJSON(w, http.StatusCreated, teamEnvelope{Team: toTeamResponse(t)})
}

// Join は招待コードでチームに参加する。
// POST /teams/join
func (h *TeamHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req joinTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Join(r.Context(), userID, req.InviteCode)
	if err != nil {
		handleServiceError(w, r, "join_team", err)
		return
	}
	writeJSON(w, http.StatusOK, teamEnvelope{Team: toTeamResponse(t)})
}

// Leave はチームから脱退する。
// DELETE /teams/leave
func (h *TeamHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Leave(r.Context(), userID); err != nil {
		handleServiceError(w, r, "leave_team", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "left team"})
}

// Stats は所属チームの集計を返す。
// GET /teams/stats
func (h *TeamHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	st, err := h.stats.GetMyTeamStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, "team_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, teamStatsEnvelope{Stats: toTeamStatsResponse(st)})
}

// Leaderboard は所属チームのリーダーボードを返す。
// GET /teams/leaderboard?period=week|month|all
func (h *TeamHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		handleServiceError(w, r, "leaderboard", err)
		return
	}

	board, err := h.stats.GetLeaderboard(r.Context(), userID, period)
	if err != nil {
		handleServiceError(w, r, "leaderboard", err)
		return
	}

	resp := leaderboardResponse{
		Period:  board.Period,
		Entries: make([]leaderboardEntryResponse, 0, len(board.Entries)),
	}
	for _, e := range board.Entries {
		resp.Entries = append(resp.Entries, leaderboardEntryResponse{
			Rank:     e.Rank,
			UserID:   e.UserID,
			Username: e.Username,
			Sessions: e.Sessions,
			Distance: e.Distance,
			Duration: e.Duration,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetMemberRole はメンバーの役割を変更する。キャプテンのみ実行できる。
// PUT /teams/members/{userId}/role
func (h *TeamHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role := model.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	u, err := h.service.SetMemberRole(r.Context(), userID, chi.URLParam(r, "userId"), role)
	if err != nil {
		handleServiceError(w, r, "set_member_role", err)
		return
	}
	writeJSON(w, http.StatusOK, publicUserEnvelope{User: toPublicUserResponse(u)})
}
