package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/laptrack/internal/model"
)

// teamAttribution はチーム帰属の和集合条件。$1にチームIDを渡す。
// 明示的帰属（sessions.team_id）と所有者の所属（users.team_id）のどちらかを満たす行を対象とし、
// 両方を満たす行もWHERE句の評価なので1回だけ数えられる。
const teamAttribution = `(s.team_id = $1 OR s.user_id IN (SELECT u.id FROM users u WHERE u.team_id = $1))`

// PostgresStatsRepo はPostgreSQLを使用した統計集計リポジトリ。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// nullableTime はゼロ値をNULLとして渡すための変換を行う。
func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// CountTeamMembers はチームの所属人数を返す。
func (r *PostgresStatsRepo) CountTeamMembers(ctx context.Context, teamID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE team_id = $1`, teamID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count team members: %w", err)
	}
	return count, nil
}

// TeamSessionTotals はチームに帰属する練習記録の件数と合計を返す。
func (r *PostgresStatsRepo) TeamSessionTotals(ctx context.Context, teamID string, since time.Time) (SessionTotals, error) {
	var totals SessionTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(s.distance), 0), COALESCE(SUM(s.duration), 0)
		 FROM sessions s
		 WHERE `+teamAttribution+`
		   AND ($2::timestamptz IS NULL OR s.created_at >= $2)`,
		teamID, nullableTime(since),
	).Scan(&totals.Count, &totals.Distance, &totals.Duration)
	if err != nil {
		return SessionTotals{}, fmt.Errorf("failed to aggregate team sessions: %w", err)
	}
	return totals, nil
}

// TeamStrokeCounts はチームに帰属する練習記録の泳法ごとの件数を返す。
func (r *PostgresStatsRepo) TeamStrokeCounts(ctx context.Context, teamID string) ([]StrokeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.stroke, count(*)
		 FROM sessions s
		 WHERE `+teamAttribution+` AND s.stroke IS NOT NULL
		 GROUP BY s.stroke`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to group team strokes: %w", err)
	}
	return scanStrokeCounts(rows)
}

// UserSessionTotals はユーザー所有の練習記録の件数と合計を返す。
func (r *PostgresStatsRepo) UserSessionTotals(ctx context.Context, userID string, since time.Time) (SessionTotals, error) {
	var totals SessionTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(distance), 0), COALESCE(SUM(duration), 0)
		 FROM sessions
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR date >= $2)`,
		userID, nullableTime(since),
	).Scan(&totals.Count, &totals.Distance, &totals.Duration)
	if err != nil {
		return SessionTotals{}, fmt.Errorf("failed to aggregate user sessions: %w", err)
	}
	return totals, nil
}

// UserStrokeCounts はユーザー所有の練習記録の泳法ごとの件数を返す。
func (r *PostgresStatsRepo) UserStrokeCounts(ctx context.Context, userID string) ([]StrokeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT stroke, count(*) FROM sessions
		 WHERE user_id = $1 AND stroke IS NOT NULL
		 GROUP BY stroke`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to group user strokes: %w", err)
	}
	return scanStrokeCounts(rows)
}

// UserWorkoutTypeCounts はユーザー所有の練習記録の種別ごとの件数を返す。
func (r *PostgresStatsRepo) UserWorkoutTypeCounts(ctx context.Context, userID string) ([]WorkoutTypeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT workout_type, count(*) FROM sessions
		 WHERE user_id = $1 AND workout_type IS NOT NULL
		 GROUP BY workout_type
		 ORDER BY workout_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to group workout types: %w", err)
	}
	defer rows.Close()

	var counts []WorkoutTypeCount
	for rows.Next() {
		var wt string
		var c WorkoutTypeCount
		if err := rows.Scan(&wt, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan workout type count: %w", err)
		}
		c.WorkoutType = model.WorkoutType(wt)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workout type counts: %w", err)
	}
	return counts, nil
}

// ListRecentByUser はユーザー所有の練習記録をdate降順でlimit件返す。
func (r *PostgresStatsRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1
		 ORDER BY date DESC, created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}
	return scanSessions(rows)
}

// TeamLeaderboard はチーム所属ユーザーごとの合計を距離降順で返す。
// 練習記録が無いメンバーも0件として含める。
func (r *PostgresStatsRepo) TeamLeaderboard(ctx context.Context, teamID string, since time.Time) ([]LeaderboardRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.first_name, u.last_name, u.avatar,
		        count(s.id), COALESCE(SUM(s.distance), 0), COALESCE(SUM(s.duration), 0)
		 FROM users u
		 LEFT JOIN sessions s
		   ON s.user_id = u.id AND ($2::timestamptz IS NULL OR s.date >= $2)
		 WHERE u.team_id = $1
		 GROUP BY u.id, u.username, u.first_name, u.last_name, u.avatar`,
		teamID, nullableTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}
	defer rows.Close()

	var board []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(
			&row.UserID, &row.Username, &row.FirstName, &row.LastName, &row.Avatar,
			&row.Sessions, &row.Distance, &row.Duration,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		board = append(board, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}
	return board, nil
}

func scanStrokeCounts(rows *sql.Rows) ([]StrokeCount, error) {
	defer rows.Close()

	var counts []StrokeCount
	for rows.Next() {
		var stroke string
		var c StrokeCount
		if err := rows.Scan(&stroke, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stroke count: %w", err)
		}
		c.Stroke = model.Stroke(stroke)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stroke counts: %w", err)
	}
	return counts, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
