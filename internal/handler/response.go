package handler

import (
	"time"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/stats"
)

// userResponse は本人向けのユーザー情報。
type userResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Avatar    string  `json:"avatar,omitempty"`
	TeamID    *string `json:"teamId"`
	Role      *string `json:"role"`
}

// publicUserResponse はチームメイトに公開するユーザー情報。メールアドレスを含まない。
type publicUserResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Avatar    string  `json:"avatar,omitempty"`
	Role      *string `json:"role,omitempty"`
}

type sessionResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Date        time.Time          `json:"date"`
	Duration    int                `json:"duration"`
	Distance    *int               `json:"distance"`
	WorkoutType *model.WorkoutType `json:"workoutType"`
	Stroke      *model.Stroke      `json:"stroke"`
	Intensity   *model.Intensity   `json:"intensity"`
	UserID      string             `json:"userId"`
	TeamID      *string            `json:"teamId"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// recentSessionResponse は公開プロフィールに載せる練習記録。説明文を含まない。
type recentSessionResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Date        time.Time          `json:"date"`
	Duration    int                `json:"duration"`
	Distance    *int               `json:"distance"`
	WorkoutType *model.WorkoutType `json:"workoutType"`
	Stroke      *model.Stroke      `json:"stroke"`
	Intensity   *model.Intensity   `json:"intensity"`
}

type teamResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Avatar      *string   `json:"avatar"`
	InviteCode  string    `json:"inviteCode"`
	CreatedAt   time.Time `json:"createdAt"`
}

type teamStatsResponse struct {
	Members          int           `json:"members"`
	TotalSessions    int           `json:"totalSessions"`
	TotalDistance    int64         `json:"totalDistance"`
	WeeklySessions   int           `json:"weeklySessions"`
	WeeklyDistance   int64         `json:"weeklyDistance"`
	MostCommonStroke *model.Stroke `json:"mostCommonStroke"`
}

type userStatsResponse struct {
	TotalSessions    int                       `json:"totalSessions"`
	TotalDistance    int64                     `json:"totalDistance"`
	TotalDuration    int64                     `json:"totalDuration"`
	WeeklySessions   int                       `json:"weeklySessions"`
	WeeklyDistance   int64                     `json:"weeklyDistance"`
	WeeklyDuration   int64                     `json:"weeklyDuration"`
	MonthlySessions  *int                      `json:"monthlySessions,omitempty"`
	MonthlyDistance  *int64                    `json:"monthlyDistance,omitempty"`
	MonthlyDuration  *int64                    `json:"monthlyDuration,omitempty"`
	AverageDistance  float64                   `json:"averageDistance"`
	MostCommonStroke *model.Stroke             `json:"mostCommonStroke,omitempty"`
	WorkoutTypes     map[model.WorkoutType]int `json:"workoutTypes"`
}

type leaderboardEntryResponse struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Sessions int    `json:"sessions"`
	Distance int64  `json:"distance"`
	Duration int64  `json:"duration"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
	if u.HasTeam() {
		teamID := *u.TeamID
		role := string(u.Role)
		resp.TeamID = &teamID
		resp.Role = &role
	}
	return resp
}

func toPublicUserResponse(u *model.User) publicUserResponse {
	resp := publicUserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
	if u.HasTeam() {
		role := string(u.Role)
		resp.Role = &role
	}
	return resp
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Date:        s.Date,
		Duration:    s.Duration,
		Distance:    s.Distance,
		WorkoutType: s.WorkoutType,
		Stroke:      s.Stroke,
		Intensity:   s.Intensity,
		UserID:      s.UserID,
		TeamID:      s.TeamID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toRecentSessionResponses(recent []stats.RecentSession) []recentSessionResponse {
	out := make([]recentSessionResponse, 0, len(recent))
	for _, s := range recent {
		out = append(out, recentSessionResponse{
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

func toTeamResponse(t *model.Team) teamResponse {
	return teamResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Avatar:      t.Avatar,
		InviteCode:  t.InviteCode,
		CreatedAt:   t.CreatedAt,
	}
}

func toTeamStatsResponse(s *stats.TeamStats) teamStatsResponse {
	return teamStatsResponse{
		Members:          s.Members,
		TotalSessions:    s.TotalSessions,
		TotalDistance:    s.TotalDistance,
		WeeklySessions:   s.WeeklySessions,
		WeeklyDistance:   s.WeeklyDistance,
		MostCommonStroke: s.MostCommonStroke,
	}
}

// toUserStatsResponse は個人集計を変換する。
// dashboardがfalseの場合は公開プロフィール用に月間集計と最頻泳法を省く。
func toUserStatsResponse(s *stats.UserStats, dashboard bool) userStatsResponse {
	workoutTypes := s.WorkoutTypes
	if workoutTypes == nil {
		workoutTypes = map[model.WorkoutType]int{}
	}
	resp := userStatsResponse{
		TotalSessions:   s.TotalSessions,
		TotalDistance:   s.TotalDistance,
		TotalDuration:   s.TotalDuration,
		WeeklySessions:  s.WeeklySessions,
		WeeklyDistance:  s.WeeklyDistance,
		WeeklyDuration:  s.WeeklyDuration,
		AverageDistance: s.AverageDistance,
		WorkoutTypes:    workoutTypes,
	}
	if dashboard {
		resp.MonthlySessions = &s.MonthlySessions
		resp.MonthlyDistance = &s.MonthlyDistance
		resp.MonthlyDuration = &s.MonthlyDuration
		resp.MostCommonStroke = s.MostCommonStroke
	}
	return resp
}
