// Package model はドメインモデルを定義する。
package model

import "time"

// Role はチーム内でのユーザーの役割を表す。
// TeamIDが設定されている場合のみ意味を持つ。
type Role string

const (
	RoleCaptain Role = "CAPTAIN"
	RoleMember  Role = "MEMBER"
)

// User はサービス利用ユーザーを表す。
// IDは外部IdPのsubject IDと一致することが期待されるが、
// IdPを経由せずに作成された行では一致しない場合がある。
type User struct {
	ID        string
	Email     string
	Username  string
	FirstName string
	LastName  string
	Avatar    string
	TeamID    *string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasTeam はユーザーがチームに所属しているかを返す。
func (u *User) HasTeam() bool {
	return u.TeamID != nil && *u.TeamID != ""
}

// IsCaptainOf はユーザーが指定チームのキャプテンかを返す。
func (u *User) IsCaptainOf(teamID string) bool {
	return u.HasTeam() && *u.TeamID == teamID && u.Role == RoleCaptain
}

// SharesTeamWith は2人のユーザーが同じチームに所属しているかを返す。
// どちらかが未所属の場合はfalse。
func (u *User) SharesTeamWith(other *User) bool {
	if u == nil || other == nil || !u.HasTeam() || !other.HasTeam() {
		return false
	}
	return *u.TeamID == *other.TeamID
}
