package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register はユーザーを登録する。既存アカウントの場合は暗黙ログインとして扱う。
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	// Login はメールアドレスとパスワードで認証する。
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	// GoogleAuth はGoogleのアクセストークンで認証する。
	GoogleAuth(ctx context.Context, accessToken string) (*auth.Result, error)
	// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// ProfileServiceInterface はプロフィール操作に必要なサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.UpdateProfileInput) (*model.User, error)
}

// AuthHandler は認証とプロフィールのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileServiceInterface) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// googleAuthRequest は token を受け付ける。accessToken は旧クライアント用。
type googleAuthRequest struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

func (r googleAuthRequest) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

type updateProfileRequest struct {
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Avatar    *string `json:"avatar"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// authResponse は認証成功時のレスポンス。
type authResponse struct {
	Token         string       `json:"token"`
	ExpiresAt     time.Time    `json:"expiresAt"`
	User          userResponse `json:"user"`
	ImplicitLogin bool         `json:"implicitLogin,omitempty"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toAuthResponse(result *auth.Result) authResponse {
	return authResponse{
		Token:         result.Token,
		ExpiresAt:     result.ExpiresAt,
		User:          toUserResponse(result.User),
		ImplicitLogin: result.ImplicitLogin,
	}
}

// Register はユーザー登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleServiceError(w, r, "register", err)
		return
	}

	// 既存アカウントへの暗黙ログインは新規作成ではないため200を返す
	status := http.StatusCreated
	if result.ImplicitLogin {
		status = http.StatusOK
	}
	writeJSON(w, status, toAuthResponse(result))
}

// Login はメールアドレスとパスワードによるログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("email and password are required"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Google はGoogleアクセストークンによるログインを処理する。
// POST /auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleAuthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token := req.token()
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("token is required"))
		return
	}

	result, err := h.service.GoogleAuth(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, "google_auth", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// GetProfile は認証済みユーザーのプロフィールを返す。
// GET /auth/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, "get_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

// UpdateProfile はプロフィールを更新する。
// PUT /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.profiles.UpdateProfile(r.Context(), userID, user.UpdateProfileInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
	})
	if err != nil {
		handleServiceError(w, r, "update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

// ChangePassword はパスワードを変更する。
// PUT /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, "change_password", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}
