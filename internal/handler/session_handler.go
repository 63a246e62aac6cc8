package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/training"
)

// TrainingServiceInterface は練習記録ハンドラーが必要とするサービスインターフェース。
// すべての操作は所有者に限定される。
type TrainingServiceInterface interface {
	Create(ctx context.Context, userID string, in training.Input) (*model.Session, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error)
	Get(ctx context.Context, userID, id string) (*model.Session, error)
	Update(ctx context.Context, userID, id string, patch training.Input) (*model.Session, error)
	Delete(ctx context.Context, userID, id string) error
}

// UserStatsProvider は個人ダッシュボードの集計を提供する。
type UserStatsProvider interface {
	GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error)
}

// SessionHandler は練習記録のHTTPハンドラー。
type SessionHandler struct {
	service TrainingServiceInterface
	stats   UserStatsProvider
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service TrainingServiceInterface, statsProvider UserStatsProvider) *SessionHandler {
	return &SessionHandler{
		service: service,
		stats:   statsProvider,
	}
}

// sessionRequest は練習記録の作成・更新リクエスト。
// 更新時は省略したフィールドを変更しない。
type sessionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Duration    *int    `json:"duration"`
	Distance    *int    `json:"distance"`
	WorkoutType *string `json:"workoutType"`
	Stroke      *string `json:"stroke"`
	Intensity   *string `json:"intensity"`
	TeamID      *string `json:"teamId"`
}

func (req sessionRequest) toInput() training.Input {
	return training.Input{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Duration:    req.Duration,
		Distance:    req.Distance,
		WorkoutType: req.WorkoutType,
		Stroke:      req.Stroke,
		Intensity:   req.Intensity,
		TeamID:      req.TeamID,
	}
}

type sessionEnvelope struct {
	Session sessionResponse `json:"session"`
}

type sessionListResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type userStatsEnvelope struct {
	Stats userStatsResponse `json:"stats"`
}

// List は自分の練習記録を日付の新しい順に返す。
// GET /sessions?limit=&offset=
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit must be an integer"))
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil || offset < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("offset must be a non-negative integer"))
		return
	}

	sessions, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, r, "list_sessions", err)
		return
	}

	resp := sessionListResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は練習記録を作成する。
// POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, r, "create_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionEnvelope{Session: toSessionResponse(s)})
}

// Stats は自分の練習集計を返す。
// GET /sessions/stats
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	st, err := h.stats.GetUserStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, "user_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, userStatsEnvelope{Stats: toUserStatsResponse(st, true)})
}

// Get は練習記録を1件返す。
// GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, "get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope{Session: toSessionResponse(s)})
}

// Update は練習記録を部分更新する。
// PUT /sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, r, "update_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope{Session: toSessionResponse(s)})
}

// Delete は練習記録を削除する。
// DELETE /sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, "delete_session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt はクエリパラメータを整数として読む。未指定の場合は0。
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
