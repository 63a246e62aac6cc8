// Package gotrue はGoTrue（Supabase Auth）v2 APIに対するidentity.Providerの実装を提供する。
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/laptrack/internal/identity"
)

// Config はGoTrueクライアントの設定。
type Config struct {
	// BaseURL はGoTrueのベースURL（例: "https://xxx.supabase.co/auth/v1"）。
	BaseURL string
	// ServiceKey は管理API用のservice roleキー。
	ServiceKey string
	// Timeout はHTTPリクエストのタイムアウト。HTTPClient指定時は無視される。
	Timeout time.Duration
	// HTTPClient はテスト用にオーバーライド可能なHTTPクライアント。
	HTTPClient *http.Client
}

// Client はGoTrue APIクライアント。
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gotrue base URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, errors.New("gotrue service key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
	}, nil
}

// gotrueUser はGoTrueのユーザーオブジェクト。
type gotrueUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

// userMetadata はuser_metadataのうち本サービスが扱うキー。
// Googleサインインではfull_nameとavatar_urlがIdPにより設定される。
type userMetadata struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// gotrueError はGoTrueのエラーレスポンス。
type gotrueError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        gotrueUser `json:"user"`
}

type listUsersResponse struct {
	Users []gotrueUser `json:"users"`
}

type createUserRequest struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	EmailConfirm bool         `json:"email_confirm"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type updateUserRequest struct {
	Password     *string       `json:"password,omitempty"`
	UserMetadata *userMetadata `json:"user_metadata,omitempty"`
}

// CreateUser は管理APIでアカウントを作成する。
func (c *Client) CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.User, error) {
	body := createUserRequest{
		Email:        params.Email,
		Password:     params.Password,
		EmailConfirm: params.EmailConfirmed,
		UserMetadata: toUserMetadata(params.Metadata),
	}

	var user gotrueUser
	status, apiErr, err := c.do(ctx, http.MethodPost, "/admin/users", c.serviceKey, body, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity && apiErr.isEmailExists() {
		return nil, identity.ErrEmailExists
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, apiErr.asError("create user", status)
	}
	return toIdentityUser(user), nil
}

// SignIn はpassword grantでサインインする。
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	status, apiErr, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, identity.ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, apiErr.asError("sign in", status)
	}
	if resp.User.ID == "" {
		return nil, fmt.Errorf("gotrue sign in: empty user in response")
	}
	return toIdentityUser(resp.User), nil
}

// GetUser は管理APIでユーザーを取得する。
func (c *Client) GetUser(ctx context.Context, id string) (*identity.User, error) {
	var user gotrueUser
	status, apiErr, err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(id), c.serviceKey, nil, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, identity.ErrUserNotFound
	}
	if status != http.StatusOK {
		return nil, apiErr.asError("get user", status)
	}
	return toIdentityUser(user), nil
}

// GetUserByAccessToken はユーザーのアクセストークンでプロフィールを取得する。
func (c *Client) GetUserByAccessToken(ctx context.Context, accessToken string) (*identity.User, error) {
	if accessToken == "" {
		return nil, identity.ErrInvalidAccessToken
	}

	var user gotrueUser
	status, apiErr, err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, identity.ErrInvalidAccessToken
	}
	if status != http.StatusOK {
		return nil, apiErr.asError("get user by access token", status)
	}
	if user.ID == "" {
		return nil, identity.ErrInvalidAccessToken
	}
	return toIdentityUser(user), nil
}

// UpdateUser は管理APIでユーザーを更新する。
func (c *Client) UpdateUser(ctx context.Context, id string, params identity.UpdateUserParams) (*identity.User, error) {
	body := updateUserRequest{Password: params.Password}
	if params.Metadata != nil {
		md := toUserMetadata(*params.Metadata)
		body.UserMetadata = &md
	}

	var user gotrueUser
	status, apiErr, err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), c.serviceKey, body, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, identity.ErrUserNotFound
	}
	if status != http.StatusOK {
		return nil, apiErr.asError("update user", status)
	}
	return toIdentityUser(user), nil
}

// ListUsers は管理APIでユーザーをページ単位で取得する。
func (c *Client) ListUsers(ctx context.Context, page, perPage int) ([]*identity.User, error) {
	q := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}

	var resp listUsersResponse
	status, apiErr, err := c.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), c.serviceKey, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiErr.asError("list users", status)
	}

	users := make([]*identity.User, len(resp.Users))
	for i, u := range resp.Users {
		users[i] = toIdentityUser(u)
	}
	return users, nil
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// 2xx以外の場合はエラーボディをgotrueErrorとして返す。
// bearerが空の場合はAuthorizationヘッダーを付与しない。
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) (int, *gotrueError, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode gotrue request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create gotrue request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("gotrue request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read gotrue response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return resp.StatusCode, nil, fmt.Errorf("failed to parse gotrue response: %w", err)
			}
		}
		return resp.StatusCode, nil, nil
	}

	apiErr := &gotrueError{Code: resp.StatusCode}
	_ = json.Unmarshal(body, apiErr)
	return resp.StatusCode, apiErr, nil
}

func (e *gotrueError) isEmailExists() bool {
	return e != nil && (e.ErrorCode == "email_exists" || e.ErrorCode == "user_already_exists")
}

func (e *gotrueError) asError(op string, status int) error {
	if e == nil {
		return fmt.Errorf("gotrue %s failed with status %d", op, status)
	}
	return fmt.Errorf("gotrue %s failed with status %d: %s %s", op, status, e.ErrorCode, e.Msg)
}

func toUserMetadata(md identity.Metadata) userMetadata {
	return userMetadata{
		Username:  md.Username,
		FirstName: md.FirstName,
		LastName:  md.LastName,
		FullName:  md.FullName,
		AvatarURL: md.AvatarURL,
	}
}

func toIdentityUser(u gotrueUser) *identity.User {
	return &identity.User{
		ID:    u.ID,
		Email: u.Email,
		Metadata: identity.Metadata{
			Username:  u.UserMetadata.Username,
			FirstName: u.UserMetadata.FirstName,
			LastName:  u.UserMetadata.LastName,
			FullName:  u.UserMetadata.FullName,
			AvatarURL: u.UserMetadata.AvatarURL,
		},
	}
}

// compile-time interface check
var _ identity.Provider = (*Client)(nil)
