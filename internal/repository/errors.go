package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反（制約名が特定できない場合）を表す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateUsername はユーザー名の一意制約違反を表す。
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateInviteCode は招待コードの一意制約違反を表す。
	ErrDuplicateInviteCode = errors.New("invite code already exists")
	// ErrAlreadyInTeam はチーム所属中のユーザーを別チームに所属させようとしたことを表す。
	ErrAlreadyInTeam = errors.New("user already belongs to a team")
	// ErrLastCaptain は他のメンバーがいるチームの唯一のキャプテンを脱退させようとしたことを表す。
	ErrLastCaptain = errors.New("last captain cannot leave a team with other members")
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// IsUniqueViolation はエラーが一意制約違反由来かを返す。
func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateInviteCode) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// translateUniqueViolation は一意制約違反を制約名に応じたセンチネルエラーに変換する。
// 一意制約違反以外のエラーはそのまま返す。
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return err
	}

	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrDuplicateUsername
	case strings.Contains(pqErr.Constraint, "invite_code"):
		return ErrDuplicateInviteCode
	default:
		return ErrDuplicate
	}
}
