package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/laptrack/internal/stats"
)

// PublicProfileProvider はチームメイトの公開プロフィールを提供する。
type PublicProfileProvider interface {
	// GetUserPublicProfile は同じチームに所属する場合のみ対象ユーザーのプロフィールを返す。
	GetUserPublicProfile(ctx context.Context, requesterID, targetID string) (*stats.PublicProfile, error)
}

// UserHandler はユーザー公開情報のHTTPハンドラー。
type UserHandler struct {
	profiles PublicProfileProvider
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(profiles PublicProfileProvider) *UserHandler {
	return &UserHandler{
		profiles: profiles,
	}
}

type publicProfileResponse struct {
	User           publicUserResponse      `json:"user"`
	Stats          userStatsResponse       `json:"stats"`
	RecentSessions []recentSessionResponse `json:"recentSessions"`
}

// GetPublicProfile はチームメイトのプロフィール・集計・最近の練習記録を返す。
// GET /users/{userId}/profile
func (h *UserHandler) GetPublicProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.GetUserPublicProfile(r.Context(), userID, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, r, "public_profile", err)
		return
	}

	writeJSON(w, http.StatusOK, publicProfileResponse{
		User:           toPublicUserResponse(profile.User),
		Stats:          toUserStatsResponse(&profile.Stats, false),
		RecentSessions: toRecentSessionResponses(profile.RecentSessions),
	})
}
