package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/user"
)

func newAuthResult(implicit bool) *auth.Result {
	teamID := "team-1"
	return &auth.Result{
		Token:     "signed.jwt.token",
		ExpiresAt: time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
		User: &model.User{
			ID:        "user-1",
			Email:     "swim@example.com",
			Username:  "swimmer",
			FirstName: "Ada",
			TeamID:    &teamID,
			Role:      model.RoleCaptain,
		},
		ImplicitLogin: implicit,
	}
}

func TestAuthHandler_Register_Created(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
			got = in
			return newAuthResult(false), nil
		},
	}
	h := NewAuthHandler(svc, &mockProfileService{})

	body := `{"email":"swim@example.com","password":"secret1","username":"swimmer","firstName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Email != "swim@example.com" || got.Username != "swimmer" || got.FirstName != "Ada" {
		t.Errorf("input not forwarded: %+v", got)
	}

	resp := decodeBody(t, w)
	if resp["token"] != "signed.jwt.token" {
		t.Errorf("token = %v", resp["token"])
	}
	u, _ := resp["user"].(map[string]any)
	if u["id"] != "user-1" || u["email"] != "swim@example.com" || u["teamId"] != "team-1" || u["role"] != "CAPTAIN" {
		t.Errorf("user = %v", u)
	}
	if _, ok := resp["implicitLogin"]; ok {
		t.Error("implicitLogin must be omitted for a fresh registration")
	}
}

func TestAuthHandler_Register_ImplicitLoginReturns200(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
			return newAuthResult(true), nil
		},
	}
	h := NewAuthHandler(svc, &mockProfileService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"swim@example.com","password":"secret1","username":"swimmer"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody(t, w); resp["implicitLogin"] != true {
		t.Errorf("implicitLogin = %v, want true", resp["implicitLogin"])
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"validation", `{}`, model.NewValidationError("email is invalid"), http.StatusBadRequest, model.ErrCodeValidation},
		{"email registered", `{}`, model.NewEmailAlreadyRegisteredError(), http.StatusConflict, model.ErrCodeEmailAlreadyRegistered},
		{"username conflict", `{}`, model.NewConflictError("username already taken"), http.StatusConflict, model.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc, &mockProfileService{})
			w := httptest.NewRecorder()

			h.Register(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body)))

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.Result, error) {
			if password != "secret1" {
				return nil, model.NewInvalidCredentialsError()
			}
			return newAuthResult(false), nil
		},
	}
	h := NewAuthHandler(svc, &mockProfileService{})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"swim@example.com","password":"secret1"}`)))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"swim@example.com","password":"wrong"}`)))
	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeInvalidCredentials)

	w = httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"swim@example.com"}`)))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

func TestAuthHandler_Google(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		googleAuthFn: func(ctx context.Context, accessToken string) (*auth.Result, error) {
			gotToken = accessToken
			return newAuthResult(false), nil
		},
	}
	h := NewAuthHandler(svc, &mockProfileService{})

	w := httptest.NewRecorder()
	h.Google(w, httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"token":"ya29.token"}`)))
	if w.Code != http.StatusOK || gotToken != "ya29.token" {
		t.Errorf("status = %d, token = %q", w.Code, gotToken)
	}

	// 旧フィールド名も受け付ける
	gotToken = ""
	w = httptest.NewRecorder()
	h.Google(w, httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"accessToken":"ya29.legacy"}`)))
	if w.Code != http.StatusOK || gotToken != "ya29.legacy" {
		t.Errorf("legacy field: status = %d, token = %q", w.Code, gotToken)
	}

	w = httptest.NewRecorder()
	h.Google(w, httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{}`)))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

func TestAuthHandler_GetProfile(t *testing.T) {
	profiles := &mockProfileService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != "user-1" {
				return nil, model.NewUserNotFoundError()
			}
			return &model.User{ID: "user-1", Email: "swim@example.com", Username: "swimmer", Role: model.RoleMember}, nil
		},
	}
	h := NewAuthHandler(&mockAuthService{}, profiles)

	w := httptest.NewRecorder()
	h.GetProfile(w, withUserID(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), "user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	u, _ := decodeBody(t, w)["user"].(map[string]any)
	if u["username"] != "swimmer" {
		t.Errorf("user = %v", u)
	}
	// 未所属の場合はteamIdとroleがnull
	if u["teamId"] != nil || u["role"] != nil {
		t.Errorf("unaffiliated user must have null teamId/role: %v", u)
	}

	w = httptest.NewRecorder()
	h.GetProfile(w, withUserID(httptest.NewRequest(http.MethodGet, "/auth/profile", nil), "ghost"))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeUserNotFound)
}

func TestAuthHandler_ProtectedEndpoints_NoUserID(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockProfileService{})

	for name, fn := range map[string]http.HandlerFunc{
		"get profile":     h.GetProfile,
		"update profile":  h.UpdateProfile,
		"change password": h.ChangePassword,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`)))
			assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
		})
	}
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	var got user.UpdateProfileInput
	profiles := &mockProfileService{
		updateProfileFn: func(ctx context.Context, userID string, in user.UpdateProfileInput) (*model.User, error) {
			got = in
			if in.Username == "taken" {
				return nil, model.NewUsernameTakenError()
			}
			return &model.User{ID: userID, Username: in.Username, FirstName: *in.FirstName}, nil
		},
	}
	h := NewAuthHandler(&mockAuthService{}, profiles)

	w := httptest.NewRecorder()
	h.UpdateProfile(w, withUserID(httptest.NewRequest(http.MethodPut, "/auth/profile",
		strings.NewReader(`{"username":"newname","firstName":"Grace"}`)), "user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.LastName != nil || got.Avatar != nil {
		t.Errorf("omitted fields must stay nil: %+v", got)
	}

	w = httptest.NewRecorder()
	h.UpdateProfile(w, withUserID(httptest.NewRequest(http.MethodPut, "/auth/profile",
		strings.NewReader(`{"username":"taken","firstName":"Grace"}`)), "user-1"))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeUsernameTaken)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	svc := &mockAuthService{
		changePasswordFn: func(ctx context.Context, userID, currentPassword, newPassword string) error {
			if currentPassword != "old-secret" {
				return model.NewCurrentPasswordIncorrectError()
			}
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockProfileService{})

	w := httptest.NewRecorder()
	h.ChangePassword(w, withUserID(httptest.NewRequest(http.MethodPut, "/auth/change-password",
		strings.NewReader(`{"currentPassword":"old-secret","newPassword":"new-secret"}`)), "user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if msg := decodeBody(t, w)["message"]; msg == "" || msg == nil {
		t.Error("expected a message")
	}

	// 現在のパスワード不一致は401ではなく400
	w = httptest.NewRecorder()
	h.ChangePassword(w, withUserID(httptest.NewRequest(http.MethodPut, "/auth/change-password",
		strings.NewReader(`{"currentPassword":"nope","newPassword":"new-secret"}`)), "user-1"))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeCurrentPasswordIncorrect)
}
