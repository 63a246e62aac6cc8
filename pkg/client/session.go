// Package client はlaptrack HTTP APIのGoクライアントを提供する。
//
// 認証状態はSessionContextが明示的に保持し、トークンと共にSecureStoreへ永続化する。
// グローバル状態は持たないため、複数アカウントを同一プロセスで扱うこともできる。
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// AuthState はクライアント側の認証状態。
// 「ログインしたことがない」と「明示的にログアウトした」を区別する。
type AuthState string

const (
	// AuthStateNeverLoggedIn は一度もログインしていない状態。
	AuthStateNeverLoggedIn AuthState = "never_logged_in"
	// AuthStateLoggedIn は有効なトークンを保持している状態。
	AuthStateLoggedIn AuthState = "logged_in"
	// AuthStateLoggedOut はユーザーが明示的にログアウトした状態。自動再開しない。
	AuthStateLoggedOut AuthState = "logged_out"
)

// Valid はAuthStateが既知の値かを返す。
func (s AuthState) Valid() bool {
	switch s {
	case AuthStateNeverLoggedIn, AuthStateLoggedIn, AuthStateLoggedOut:
		return true
	}
	return false
}

// ErrNotLoggedIn はトークンが必要な操作をログイン前に呼んだ場合のエラー。
var ErrNotLoggedIn = errors.New("client: not logged in")

// Snapshot はSecureStoreに永続化される認証状態。
// TokenはStateがAuthStateLoggedInの場合のみ意味を持つ。
type Snapshot struct {
	State AuthState `json:"state"`
	Token string    `json:"token,omitempty"`
}

// normalize は矛盾した組み合わせを安全側に倒す。
func (s Snapshot) normalize() Snapshot {
	if !s.State.Valid() {
		return Snapshot{State: AuthStateNeverLoggedIn}
	}
	if s.State != AuthStateLoggedIn {
		return Snapshot{State: s.State}
	}
	if s.Token == "" {
		return Snapshot{State: AuthStateLoggedOut}
	}
	return s
}

// SecureStore は認証状態の永続化先。
// 保存されたものがない場合、LoadはAuthStateNeverLoggedInのSnapshotを返す。
type SecureStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// SessionContext はクライアントの認証状態とトークンを保持する。
// ゴルーチンセーフ。
type SessionContext struct {
	store SecureStore

	mu   sync.RWMutex
	snap Snapshot
}

// NewSessionContext はSecureStoreを使うSessionContextを生成する。
// 生成直後の状態はAuthStateNeverLoggedIn。保存済みの状態を使うにはResumeを呼ぶ。
func NewSessionContext(store SecureStore) *SessionContext {
	return &SessionContext{
		store: store,
		snap:  Snapshot{State: AuthStateNeverLoggedIn},
	}
}

// Resume は保存済みの状態を読み込み、ログイン中だった場合のみセッションを復元する。
// 復元できた場合はtrueを返す。明示的にログアウトした後は復元しない。
func (s *SessionContext) Resume(ctx context.Context) (bool, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("セッションの読み込みに失敗: %w", err)
	}
	snap = snap.normalize()

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	return snap.State == AuthStateLoggedIn, nil
}

// SignIn はトークンを保存しAuthStateLoggedInに遷移する。
func (s *SessionContext) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("client: empty token")
	}
	return s.transition(ctx, Snapshot{State: AuthStateLoggedIn, Token: token})
}

// Logout はトークンを破棄しAuthStateLoggedOutを保存する。
// サーバー側にトークン失効の仕組みはないため、ローカルの破棄のみ行う。
func (s *SessionContext) Logout(ctx context.Context) error {
	return s.transition(ctx, Snapshot{State: AuthStateLoggedOut})
}

// transition は永続化に成功した場合のみメモリ上の状態を更新する。
func (s *SessionContext) transition(ctx context.Context, next Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	s.snap = next
	return nil
}

// State は現在の認証状態を返す。
func (s *SessionContext) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.State
}

// Token は現在のトークンを返す。ログインしていない場合はErrNotLoggedIn。
func (s *SessionContext) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.State != AuthStateLoggedIn {
		return "", ErrNotLoggedIn
	}
	return s.snap.Token, nil
}
