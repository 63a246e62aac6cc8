package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// errGoogleTokenRejected はGoogleがアクセストークンを拒否したことを表す。
var errGoogleTokenRejected = errors.New("google rejected access token")

// GoogleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
type GoogleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleVerifier はモバイルクライアントが取得したGoogleアクセストークンを
// userinfoエンドポイントで検証する。
type GoogleVerifier struct {
	userInfoURL string
	client      *http.Client
}

// NewGoogleVerifier はGoogleVerifierを生成する。
// userInfoURLが空の場合はGoogleの本番エンドポイントを使う。
// clientには本番ではSSRFガード付きクライアントを渡す。
func NewGoogleVerifier(userInfoURL string, client *http.Client) *GoogleVerifier {
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleVerifier{userInfoURL: userInfoURL, client: client}
}

// FetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
// 401/403の場合とメールアドレスが未確認の場合はerrGoogleTokenRejectedを返す。
func (v *GoogleVerifier) FetchUserInfo(ctx context.Context, accessToken string) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errGoogleTokenRejected
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if info.Sub == "" || info.Email == "" {
		return nil, errGoogleTokenRejected
	}
	// 未確認のメールアドレスでは既存アカウントに紐付けない
	if !info.EmailVerified {
		return nil, errGoogleTokenRejected
	}

	return &info, nil
}
