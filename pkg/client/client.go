package client

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
)

const defaultTimeout = 15 * time.Second

// APIError はサーバーが返したエラーレスポンス。
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Code       string `json:"code"`
	Category   string `json:"category"`
	Action     string `json:"action"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("laptrack: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsCode はerrがcodeを持つAPIErrorかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client はlaptrack APIのクライアント。
// 認証が必要なリクエストにはSessionContextのトークンを使う。
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *SessionContext
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient は使用するhttp.Clientを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New はbaseURLのAPIに接続するClientを生成する。
func New(baseURL string, session *SessionContext, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	if session == nil {
		return nil, errors.New("client: session context is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		session:    session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session はClientに紐づくSessionContextを返す。
func (c *Client) Session() *SessionContext {
	return c.session
}

// --- Auth ---

// Register はアカウントを登録し、成功したらセッションを開始する。
func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", in)
}

// Login はメールアドレスとパスワードでログインする。
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// GoogleSignIn はGoogleのアクセストークンでログインする。
func (c *Client) GoogleSignIn(ctx context.Context, accessToken string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/google", map[string]string{"token": accessToken})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var res AuthResult
	if err := c.do(ctx, http.MethodPost, path, false, body, &res); err != nil {
		return nil, err
	}
	if err := c.session.SignIn(ctx, res.Token); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout はローカルのトークンを破棄する。以後Resumeでは自動ログインしない。
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Profile は自分のプロフィールを取得する。
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var res struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/profile", true, nil, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// UpdateProfile は自分のプロフィールを更新する。
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (*User, error) {
	var res struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, "/auth/profile", true, in, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// ChangePassword はパスワードを変更する。
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return c.do(ctx, http.MethodPut, "/auth/change-password", true, body, nil)
}

// --- Sessions ---

// ListSessions は自分のセッションを新しい順に取得する。0以下のlimitはサーバー既定値を使う。
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, path, true, nil, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

// CreateSession はセッションを記録する。
func (c *Client) CreateSession(ctx context.Context, in SessionInput) (*Session, error) {
	return c.sessionRequest(ctx, http.MethodPost, "/sessions", in)
}

// GetSession はセッションを取得する。
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	return c.sessionRequest(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil)
}

// UpdateSession はセッションを部分更新する。
func (c *Client) UpdateSession(ctx context.Context, id string, in SessionInput) (*Session, error) {
	return c.sessionRequest(ctx, http.MethodPut, "/sessions/"+url.PathEscape(id), in)
}

// DeleteSession はセッションを削除する。
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), true, nil, nil)
}

func (c *Client) sessionRequest(ctx context.Context, method, path string, body any) (*Session, error) {
	var res struct {
		Session Session `json:"session"`
	}
	if err := c.do(ctx, method, path, true, body, &res); err != nil {
		return nil, err
	}
	return &res.Session, nil
}

// MyStats はダッシュボード用の個人集計を取得する。
func (c *Client) MyStats(ctx context.Context) (*UserStats, error) {
	var res struct {
		Stats UserStats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions/stats", true, nil, &res); err != nil {
		return nil, err
	}
	return &res.Stats, nil
}

// --- Teams ---

// MyTeam は所属チームとメンバーを取得する。
func (c *Client) MyTeam(ctx context.Context) (*TeamView, error) {
	var res TeamView
	if err := c.do(ctx, http.MethodGet, "/teams", true, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateTeam はチームを作成し、自分をキャプテンとして所属させる。
func (c *Client) CreateTeam(ctx context.Context, in TeamInput) (*Team, error) {
	return c.teamRequest(ctx, http.MethodPost, "/teams", in)
}

// JoinTeam は招待コードでチームに参加する。
func (c *Client) JoinTeam(ctx context.Context, inviteCode string) (*Team, error) {
	return c.teamRequest(ctx, http.MethodPost, "/teams/join", map[string]string{"inviteCode": inviteCode})
}

func (c *Client) teamRequest(ctx context.Context, method, path string, body any) (*Team, error) {
	var res struct {
		Team Team `json:"team"`
	}
	if err := c.do(ctx, method, path, true, body, &res); err != nil {
		return nil, err
	}
	return &res.Team, nil
}

// LeaveTeam はチームを脱退する。
func (c *Client) LeaveTeam(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/teams/leave", true, nil, nil)
}

// TeamStats は所属チームの集計を取得する。
func (c *Client) TeamStats(ctx context.Context) (*TeamStats, error) {
	var res struct {
		Stats TeamStats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/teams/stats", true, nil, &res); err != nil {
		return nil, err
	}
	return &res.Stats, nil
}

// Leaderboard は所属チームのランキングを取得する。periodが空の場合はサーバー既定値（week）。
func (c *Client) Leaderboard(ctx context.Context, period string) (*Leaderboard, error) {
	path := "/teams/leaderboard"
	if period != "" {
		path += "?" + url.Values{"period": {period}}.Encode()
	}
	var res Leaderboard
	if err := c.do(ctx, http.MethodGet, path, true, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetMemberRole はチームメンバーの役割を変更する。キャプテンのみ実行できる。
func (c *Client) SetMemberRole(ctx context.Context, userID, role string) (*PublicUser, error) {
	var res struct {
		User PublicUser `json:"user"`
	}
	path := "/teams/members/" + url.PathEscape(userID) + "/role"
	if err := c.do(ctx, http.MethodPut, path, true, map[string]string{"role": role}, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// UserProfile はチームメイトの公開プロフィールを取得する。
func (c *Client) UserProfile(ctx context.Context, userID string) (*PublicProfile, error) {
	var res PublicProfile
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/profile", true, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// 2xx以外の場合は*APIErrorを返す。
func (c *Client) do(ctx context.Context, method, path string, authenticated bool, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token, err := c.session.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
