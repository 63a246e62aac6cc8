// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, team, session, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation               = "VALIDATION_ERROR"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeForbidden                = "FORBIDDEN"
	ErrCodeInvalidToken             = "INVALID_TOKEN"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeTeamNotFound             = "TEAM_NOT_FOUND"
	ErrCodeSessionNotFound          = "SESSION_NOT_FOUND"
	ErrCodeNotInTeam                = "NOT_IN_TEAM"
	ErrCodeConflict                 = "CONFLICT"
	ErrCodeEmailAlreadyRegistered   = "EMAIL_ALREADY_REGISTERED"
	ErrCodeAlreadyInTeam            = "ALREADY_IN_TEAM"
	ErrCodeUsernameTaken            = "USERNAME_TAKEN"
	ErrCodeCurrentPasswordIncorrect = "CURRENT_PASSWORD_INCORRECT"
	ErrCodeInvariantViolation       = "INVARIANT_VIOLATION"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "invalid request body",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は認証情報が無い場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewForbiddenError は認証済みだが権限が無い場合のエラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  reason,
		Category: "auth",
		Action:   "アクセス権限を確認してください。",
	}
}

// NewInvalidTokenError はトークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "invalid or expired token",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "user not found",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTeamNotFoundError は招待コードに該当するチームが無い場合のエラーを生成する。
func NewTeamNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTeamNotFound,
		Message:  "team not found",
		Category: "team",
		Action:   "招待コードを確認してください。",
	}
}

// NewSessionNotFoundError は練習記録が見つからない場合のエラーを生成する。
// 他ユーザーの記録も存在を明かさずこのエラーで扱う。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("session not found: %s", sessionID),
		Category: "session",
		Action:   "練習記録IDを確認してください。",
	}
}

// NewNotInTeamError はチーム未所属のユーザーがチーム操作を行った場合のエラーを生成する。
func NewNotInTeamError() *APIError {
	return &APIError{
		Code:     ErrCodeNotInTeam,
		Message:  "not in a team",
		Category: "team",
		Action:   "チームを作成するか、招待コードで参加してください。",
	}
}

// NewConflictError は一意制約などの競合エラーを生成する。
func NewConflictError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  reason,
		Category: "validation",
		Action:   "別の値を指定してください。",
	}
}

// NewEmailAlreadyRegisteredError は登録済みメールアドレスでの新規登録エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "email already registered; login or reset password",
		Category: "auth",
		Action:   "ログインするか、パスワードを再設定してください。",
	}
}

// NewAlreadyInTeamError は既にチーム所属中のユーザーが作成・参加しようとした場合のエラーを生成する。
func NewAlreadyInTeamError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInTeam,
		Message:  "already in a team",
		Category: "team",
		Action:   "現在のチームを脱退してから再度お試しください。",
	}
}

// NewUsernameTakenError はユーザー名が他のユーザーに使用されている場合のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "username taken",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewCurrentPasswordIncorrectError はパスワード変更時の現在パスワード不一致エラーを生成する。
func NewCurrentPasswordIncorrectError() *APIError {
	return &APIError{
		Code:     ErrCodeCurrentPasswordIncorrect,
		Message:  "current password incorrect",
		Category: "auth",
		Action:   "現在のパスワードを確認してください。",
	}
}

// NewInvariantViolationError は業務ルールのガードに違反した場合のエラーを生成する。
func NewInvariantViolationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvariantViolation,
		Message:  reason,
		Category: "team",
		Action:   "操作の前提条件を満たしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、メッセージには内部情報を含めない。
func NewInternalError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  reason,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
