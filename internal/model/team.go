package model

import "time"

// Team は水泳チームを表す。
// 所属ユーザーはusers.team_idで関連付けられ、チーム自体が削除されることはない。
type Team struct {
	ID          string
	Name        string
	Description *string
	Avatar      *string
	InviteCode  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
