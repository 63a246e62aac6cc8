package client

import "time"

// User はログインユーザー自身のプロフィール。
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Avatar    string  `json:"avatar,omitempty"`
	TeamID    *string `json:"teamId"`
	Role      *string `json:"role"`
}

// PublicUser はメールアドレスを含まない他ユーザーのプロフィール。
type PublicUser struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Avatar    string  `json:"avatar,omitempty"`
	Role      *string `json:"role,omitempty"`
}

// AuthResult はregister/login/googleのレスポンス。
type AuthResult struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	User          User      `json:"user"`
	ImplicitLogin bool      `json:"implicitLogin,omitempty"`
}

// RegisterInput は新規登録の入力。
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username  string  `json:"username"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
}

// Session はトレーニングセッション。
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Date        time.Time `json:"date"`
	Duration    int       `json:"duration"`
	Distance    *int      `json:"distance"`
	WorkoutType *string   `json:"workoutType"`
	Stroke      *string   `json:"stroke"`
	Intensity   *string   `json:"intensity"`
	UserID      string    `json:"userId"`
	TeamID      *string   `json:"teamId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SessionInput はセッション作成・更新の入力。更新時はnilのフィールドを変更しない。
// Dateは"2006-01-02"またはRFC3339形式。
type SessionInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	Duration    *int    `json:"duration,omitempty"`
	Distance    *int    `json:"distance,omitempty"`
	WorkoutType *string `json:"workoutType,omitempty"`
	Stroke      *string `json:"stroke,omitempty"`
	Intensity   *string `json:"intensity,omitempty"`
	TeamID      *string `json:"teamId,omitempty"`
}

// UserStats は個人の集計値。公開プロフィールではMonthly系とMostCommonStrokeは含まれない。
type UserStats struct {
	TotalSessions    int            `json:"totalSessions"`
	TotalDistance    int64          `json:"totalDistance"`
	TotalDuration    int64          `json:"totalDuration"`
	WeeklySessions   int            `json:"weeklySessions"`
	WeeklyDistance   int64          `json:"weeklyDistance"`
	WeeklyDuration   int64          `json:"weeklyDuration"`
	MonthlySessions  *int           `json:"monthlySessions,omitempty"`
	MonthlyDistance  *int64         `json:"monthlyDistance,omitempty"`
	MonthlyDuration  *int64         `json:"monthlyDuration,omitempty"`
	AverageDistance  float64        `json:"averageDistance"`
	MostCommonStroke *string        `json:"mostCommonStroke,omitempty"`
	WorkoutTypes     map[string]int `json:"workoutTypes"`
}

// Team はチーム。
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Avatar      *string   `json:"avatar"`
	InviteCode  string    `json:"inviteCode"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TeamInput はチーム作成の入力。
type TeamInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

// TeamView は所属チームとメンバー一覧。
type TeamView struct {
	Team    Team         `json:"team"`
	Members []PublicUser `json:"members"`
}

// TeamStats はチームの集計値。
type TeamStats struct {
	Members          int     `json:"members"`
	TotalSessions    int     `json:"totalSessions"`
	TotalDistance    int64   `json:"totalDistance"`
	WeeklySessions   int     `json:"weeklySessions"`
	WeeklyDistance   int64   `json:"weeklyDistance"`
	MostCommonStroke *string `json:"mostCommonStroke"`
}

// LeaderboardEntry はランキングの1行。
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Sessions int    `json:"sessions"`
	Distance int64  `json:"distance"`
	Duration int64  `json:"duration"`
}

// Leaderboard はチーム内ランキング。
type Leaderboard struct {
	Period  string             `json:"period"`
	Entries []LeaderboardEntry `json:"entries"`
}

// RecentSession は公開プロフィールに載る直近のセッション。説明文は含まない。
type RecentSession struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Duration    int       `json:"duration"`
	Distance    *int      `json:"distance"`
	WorkoutType *string   `json:"workoutType"`
	Stroke      *string   `json:"stroke"`
	Intensity   *string   `json:"intensity"`
}

// PublicProfile はチームメイトの公開プロフィール。
type PublicProfile struct {
	User           PublicUser      `json:"user"`
	Stats          UserStats       `json:"stats"`
	RecentSessions []RecentSession `json:"recentSessions"`
}
