// Package stats はユーザーとチームの練習統計を集計する。
//
// チームへの帰属は、練習記録の明示的なteam_idと所有者の現在の所属の和集合で判定する。
// 所有者が別チームへ移籍した場合、旧チームでタグ付けされた記録は両方のチームに計上される。
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/laptrack/internal/metrics"
	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/repository"
)

const (
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour

	// RecentSessionLimit は公開プロフィールに含める直近の練習記録の件数。
	RecentSessionLimit = 10
)

// Period はリーダーボードの集計期間。
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod は文字列を集計期間に変換する。空文字はweekとして扱う。
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodWeek, nil
	case PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), nil
	default:
		return "", model.NewValidationError("period must be one of week, month, all")
	}
}

// TeamStats はチーム単位の集計結果。
// MostCommonStrokeは泳法が記録されていない場合と、泳法集計に失敗した場合にnilとなる。
type TeamStats struct {
	TeamID           string
	Members          int
	TotalSessions    int
	TotalDistance    int64
	WeeklySessions   int
	WeeklyDistance   int64
	MostCommonStroke *model.Stroke
}

// UserStats はユーザー単位の集計結果。
type UserStats struct {
	TotalSessions    int
	TotalDistance    int64
	TotalDuration    int64
	WeeklySessions   int
	WeeklyDistance   int64
	WeeklyDuration   int64
	MonthlySessions  int
	MonthlyDistance  int64
	MonthlyDuration  int64
	AverageDistance  float64
	MostCommonStroke *model.Stroke
	WorkoutTypes     map[model.WorkoutType]int
}

// RecentSession は公開プロフィール用に説明文を除いた練習記録。
type RecentSession struct {
	ID          string
	Title       string
	Date        time.Time
	Duration    int
	Distance    *int
	WorkoutType *model.WorkoutType
	Stroke      *model.Stroke
	Intensity   *model.Intensity
}

// PublicProfile はチームメイトに公開されるプロフィールと統計。
type PublicProfile struct {
	User           *model.User
	Stats          UserStats
	RecentSessions []RecentSession
}

// LeaderboardEntry はリーダーボードの1行。
type LeaderboardEntry struct {
	Rank int
	repository.LeaderboardRow
}

// Leaderboard はリーダーボードの集計結果。
type Leaderboard struct {
	TeamID  string
	Period  Period
	Entries []LeaderboardEntry
}

// Engine は統計集計を提供する。
type Engine struct {
	statsRepo repository.StatsRepository
	userRepo  repository.UserRepository
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewEngine はEngineを生成する。collectorがnilの場合は記録しない。
func NewEngine(statsRepo repository.StatsRepository, userRepo repository.UserRepository, collector metrics.MetricsCollector) *Engine {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Engine{
		statsRepo: statsRepo,
		userRepo:  userRepo,
		metrics:   collector,
		now:       time.Now,
	}
}

// GetTeamStats はチームの集計を返す。
// 人数・累計・週次は並行に実行し、いずれかの失敗で全体を失敗とする。
// 泳法集計は独立して実行し、失敗時はMostCommonStrokeをnilとして継続する。
func (e *Engine) GetTeamStats(ctx context.Context, teamID string) (*TeamStats, error) {
	stats := &TeamStats{TeamID: teamID}
	weekStart := e.now().Add(-weekWindow)

	// 1. 泳法集計（失敗は縮退）
	strokeDone := make(chan *model.Stroke, 1)
	go func() {
		counts, err := e.statsRepo.TeamStrokeCounts(ctx, teamID)
		if err != nil {
			slog.Warn("stroke aggregation failed; most common stroke omitted",
				slog.String("team_id", teamID),
				slog.String("error", err.Error()),
			)
			e.metrics.RecordStatsDegradation()
			strokeDone <- nil
			return
		}
		strokeDone <- MostCommonStroke(counts)
	}()

	// 2. 人数・累計・週次（失敗は全体の失敗）
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := e.statsRepo.CountTeamMembers(gctx, teamID)
		if err != nil {
			return err
		}
		stats.Members = n
		return nil
	})
	g.Go(func() error {
		totals, err := e.statsRepo.TeamSessionTotals(gctx, teamID, time.Time{})
		if err != nil {
			return err
		}
		stats.TotalSessions = totals.Count
		stats.TotalDistance = totals.Distance
		return nil
	})
	g.Go(func() error {
		weekly, err := e.statsRepo.TeamSessionTotals(gctx, teamID, weekStart)
		if err != nil {
			return err
		}
		stats.WeeklySessions = weekly.Count
		stats.WeeklyDistance = weekly.Distance
		return nil
	})

	err := g.Wait()
	stroke := <-strokeDone
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate team stats: %w", err)
	}
	stats.MostCommonStroke = stroke
	return stats, nil
}

// GetMyTeamStats は呼び出し元の所属チームの集計を返す。
func (e *Engine) GetMyTeamStats(ctx context.Context, userID string) (*TeamStats, error) {
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasTeam() {
		return nil, model.NewNotInTeamError()
	}
	return e.GetTeamStats(ctx, *user.TeamID)
}

// GetUserPublicProfile は同じチームのメンバーのプロフィールと統計を返す。
// 要求者と対象が同じチームに所属していない場合はForbiddenとする。
func (e *Engine) GetUserPublicProfile(ctx context.Context, requesterID, targetID string) (*PublicProfile, error) {
	requester, err := e.findUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	target, err := e.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}
	if !requester.SharesTeamWith(target) {
		return nil, model.NewForbiddenError("you can only view profiles of your teammates")
	}

	var (
		userStats *UserStats
		recent    []*model.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.userStats(gctx, targetID, false)
		if err != nil {
			return err
		}
		userStats = s
		return nil
	})
	g.Go(func() error {
		sessions, err := e.statsRepo.ListRecentByUser(gctx, targetID, RecentSessionLimit)
		if err != nil {
			return err
		}
		recent = sessions
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build public profile: %w", err)
	}

	return &PublicProfile{
		User:           target,
		Stats:          *userStats,
		RecentSessions: redact(recent),
	}, nil
}

// GetUserStats は呼び出し元自身の統計を返す。
func (e *Engine) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	stats, err := e.userStats(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}
	return stats, nil
}

// GetLeaderboard は呼び出し元のチームのメンバーを期間内の距離順に並べる。
// 同距離は件数の降順、さらにユーザー名の昇順で順位を決める。
func (e *Engine) GetLeaderboard(ctx context.Context, userID string, period Period) (*Leaderboard, error) {
	var since time.Time
	switch period {
	case PeriodWeek:
		since = e.now().Add(-weekWindow)
	case PeriodMonth:
		since = e.now().Add(-monthWindow)
	case PeriodAll:
	default:
		return nil, model.NewValidationError("period must be one of week, month, all")
	}

	user, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasTeam() {
		return nil, model.NewNotInTeamError()
	}
	teamID := *user.TeamID

	rows, err := e.statsRepo.TeamLeaderboard(ctx, teamID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Distance != rows[j].Distance {
			return rows[i].Distance > rows[j].Distance
		}
		if rows[i].Sessions != rows[j].Sessions {
			return rows[i].Sessions > rows[j].Sessions
		}
		return rows[i].Username < rows[j].Username
	})

	entries := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = LeaderboardEntry{Rank: i + 1, LeaderboardRow: row}
	}
	return &Leaderboard{TeamID: teamID, Period: period, Entries: entries}, nil
}

// userStats はユーザー所有の練習記録を集計する。
// withDashboardがtrueの場合は30日集計と最多泳法も含める。
func (e *Engine) userStats(ctx context.Context, userID string, withDashboard bool) (*UserStats, error) {
	now := e.now()
	stats := &UserStats{WorkoutTypes: map[model.WorkoutType]int{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := e.statsRepo.UserSessionTotals(gctx, userID, time.Time{})
		if err != nil {
			return err
		}
		stats.TotalSessions, stats.TotalDistance, stats.TotalDuration = t.Count, t.Distance, t.Duration
		if t.Count > 0 {
			stats.AverageDistance = float64(t.Distance) / float64(t.Count)
		}
		return nil
	})
	g.Go(func() error {
		t, err := e.statsRepo.UserSessionTotals(gctx, userID, now.Add(-weekWindow))
		if err != nil {
			return err
		}
		stats.WeeklySessions, stats.WeeklyDistance, stats.WeeklyDuration = t.Count, t.Distance, t.Duration
		return nil
	})
	g.Go(func() error {
		counts, err := e.statsRepo.UserWorkoutTypeCounts(gctx, userID)
		if err != nil {
			return err
		}
		for _, c := range counts {
			stats.WorkoutTypes[c.WorkoutType] = c.Count
		}
		return nil
	})
	if withDashboard {
		g.Go(func() error {
			t, err := e.statsRepo.UserSessionTotals(gctx, userID, now.Add(-monthWindow))
			if err != nil {
				return err
			}
			stats.MonthlySessions, stats.MonthlyDistance, stats.MonthlyDuration = t.Count, t.Distance, t.Duration
			return nil
		})
		g.Go(func() error {
			counts, err := e.statsRepo.UserStrokeCounts(gctx, userID)
			if err != nil {
				return err
			}
			stats.MostCommonStroke = MostCommonStroke(counts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (e *Engine) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := e.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// MostCommonStroke は件数が最大の泳法を返す。同数の場合は泳法名の辞書順で最小のものを選ぶ。
// 件数が無い場合はnilを返す。
func MostCommonStroke(counts []repository.StrokeCount) *model.Stroke {
	var best *repository.StrokeCount
	for i := range counts {
		c := &counts[i]
		if c.Count <= 0 {
			continue
		}
		if best == nil || c.Count > best.Count || (c.Count == best.Count && c.Stroke < best.Stroke) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	stroke := best.Stroke
	return &stroke
}

func redact(sessions []*model.Session) []RecentSession {
	out := make([]RecentSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, RecentSession{
			ID:          s.ID,
			Title:       s.Title,
			Date:        s.Date,
			Duration:    s.Duration,
			Distance:    s.Distance,
			WorkoutType: s.WorkoutType,
			Stroke:      s.Stroke,
			Intensity:   s.Intensity,
		})
	}
	return out
}
