package handler

import (
	"github.com/hitoshi/laptrack/internal/auth"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/team"
	"github.com/hitoshi/laptrack/internal/training"
	"github.com/hitoshi/laptrack/internal/user"
)

// サービス層の具象型がハンドラーのインターフェースを満たすことをコンパイル時に検証する。
// ハンドラー側のレスポンス変換はresponse.goで行うため、アダプタは不要。
var (
	_ AuthServiceInterface     = (*auth.Service)(nil)
	_ ProfileServiceInterface  = (*user.Service)(nil)
	_ TrainingServiceInterface = (*training.Service)(nil)
	_ TeamServiceInterface     = (*team.Service)(nil)
	_ UserStatsProvider        = (*stats.Engine)(nil)
	_ TeamStatsProvider        = (*stats.Engine)(nil)
	_ PublicProfileProvider    = (*stats.Engine)(nil)
)
