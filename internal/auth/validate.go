package auth

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/hitoshi/laptrack/internal/model"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 6
	// MinUsernameLength はユーザー名の最小文字数。
	MinUsernameLength = 3
	// MaxUsernameLength はユーザー名の最大文字数。
	MaxUsernameLength = 30
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// NormalizeEmail は前後の空白を除去し小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail はメールアドレスの形式を検証する。表示名付きの形式は受け付けない。
func ValidateEmail(email string) *model.APIError {
	if email == "" {
		return model.NewValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("email format is invalid")
	}
	return nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) *model.APIError {
	if len(password) < MinPasswordLength {
		return model.NewValidationError("password must be at least 6 characters")
	}
	return nil
}

// ValidateUsername はユーザー名の長さと使用文字を検証する。
func ValidateUsername(username string) *model.APIError {
	if len(username) < MinUsernameLength {
		return model.NewValidationError("username must be at least 3 characters")
	}
	if len(username) > MaxUsernameLength {
		return model.NewValidationError("username must be at most 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return model.NewValidationError("username may contain only letters, digits, '_' and '.'")
	}
	return nil
}

// SplitFullName は氏名を最初の空白区切りで姓名に分割する。
// 最初のトークンがfirstName、残りを空白で連結したものがlastNameになる。
func SplitFullName(fullName string) (firstName, lastName string) {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// usernameBase はメールアドレスのローカル部からユーザー名の候補を作る。
// 使用できない文字は除去し、短すぎる場合は"swimmer"で補う。
func usernameBase(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) < MinUsernameLength {
		base = "swimmer" + base
	}
	// "_"と6文字の接尾辞を付けても上限に収まる長さに切り詰める
	if limit := MaxUsernameLength - 7; len(base) > limit {
		base = base[:limit]
	}
	return base
}

// usernameSuffix はプロバイダーIDから接尾辞用の6文字を取り出す。
func usernameSuffix(providerID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(providerID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 6 {
				break
			}
		}
	}
	return b.String()
}
