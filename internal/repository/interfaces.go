// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/laptrack/internal/model"
)

// UpsertMode はUpsert時に既存行のusernameを上書きするかを指定する。
type UpsertMode int

const (
	// UpsertKeepUsername は既存行のusernameを維持する。新規行には指定値を使う。
	UpsertKeepUsername UpsertMode = iota
	// UpsertOverwriteUsername は既存行のusernameも指定値で上書きする。
	UpsertOverwriteUsername
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合はErrDuplicateEmail、ErrDuplicateUsername、ErrDuplicateのいずれかを返す。
	Create(ctx context.Context, user *model.User) error

	// Upsert はIDをキーにユーザーを作成または更新し、保存後の行を返す。
	// email、first_name、last_nameは常に更新する。avatarは空でない場合のみ更新する。
	// ID以外の一意制約違反はCreateと同じエラーを返す。
	Upsert(ctx context.Context, user *model.User, mode UpsertMode) (*model.User, error)

	// UpdateProfile はユーザー名、氏名、アバターを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// ListByTeam はチームの所属ユーザーをユーザー名順に返す。
	ListByTeam(ctx context.Context, teamID string) ([]*model.User, error)

	// ListAll は全ユーザーを作成日時順に返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// CountByTeam はチームの所属人数とキャプテン人数を返す。
	CountByTeam(ctx context.Context, teamID string) (members int, captains int, err error)

	// AssignTeam は未所属のユーザーをチームに所属させる。
	// 既に所属している場合はErrAlreadyInTeamを返す。
	AssignTeam(ctx context.Context, userID, teamID string, role model.Role) error

	// ClearTeam はユーザーのチーム所属を解除し、roleをMEMBERに戻す。
	// 他のメンバーがいるチームの唯一のキャプテンの場合はErrLastCaptainを返す。
	ClearTeam(ctx context.Context, userID string) error

	// SetRole は指定チームに所属するユーザーのroleを更新する。
	// 該当ユーザーがそのチームに所属していない場合はErrNotFoundを返す。
	SetRole(ctx context.Context, userID, teamID string, role model.Role) error
}

// TeamRepository はチームデータの永続化インターフェース。
type TeamRepository interface {
	// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Team, error)

	// FindByInviteCode は招待コードでチームを検索する。見つからない場合はnilを返す。
	FindByInviteCode(ctx context.Context, code string) (*model.Team, error)

	// CreateWithCaptain はチームを作成し、作成者をキャプテンとして同一トランザクションで所属させる。
	// 作成者が既にチーム所属中の場合はErrAlreadyInTeam、招待コード重複の場合はErrDuplicateInviteCodeを返す。
	CreateWithCaptain(ctx context.Context, team *model.Team, captainID string) error
}

// SessionRepository は練習記録の永続化インターフェース。
// 参照・更新・削除は常に所有者IDで絞り込む。
type SessionRepository interface {
	// Create は練習記録を作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByIDAndUser は所有者の練習記録を取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Session, error)

	// ListByUser は所有者の練習記録をdate降順で返す。
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error)

	// Update は所有者の練習記録を上書き更新する。該当行が無い場合はErrNotFoundを返す。
	Update(ctx context.Context, session *model.Session) error

	// DeleteByIDAndUser は所有者の練習記録を削除する。該当行が無い場合はErrNotFoundを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) error
}

// StatsRepository は統計集計用の読み取り専用クエリのインターフェース。
// チーム集計はsessions.team_idによる明示的帰属と、所有者のusers.team_idによる
// 暗黙的帰属の和集合を対象とする。
type StatsRepository interface {
	// CountTeamMembers はチームの所属人数を返す。
	CountTeamMembers(ctx context.Context, teamID string) (int, error)

	// TeamSessionTotals はチームに帰属する練習記録の件数と合計を返す。
	// sinceがゼロ値でない場合はcreated_at >= sinceに絞り込む。
	TeamSessionTotals(ctx context.Context, teamID string, since time.Time) (SessionTotals, error)

	// TeamStrokeCounts はチームに帰属する練習記録の泳法ごとの件数を返す。NULLは除外する。
	TeamStrokeCounts(ctx context.Context, teamID string) ([]StrokeCount, error)

	// UserSessionTotals はユーザー所有の練習記録の件数と合計を返す。
	// sinceがゼロ値でない場合はdate >= sinceに絞り込む。
	UserSessionTotals(ctx context.Context, userID string, since time.Time) (SessionTotals, error)

	// UserStrokeCounts はユーザー所有の練習記録の泳法ごとの件数を返す。NULLは除外する。
	UserStrokeCounts(ctx context.Context, userID string) ([]StrokeCount, error)

	// UserWorkoutTypeCounts はユーザー所有の練習記録の種別ごとの件数を返す。NULLは除外する。
	UserWorkoutTypeCounts(ctx context.Context, userID string) ([]WorkoutTypeCount, error)

	// ListRecentByUser はユーザー所有の練習記録をdate降順でlimit件返す。
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Session, error)

	// TeamLeaderboard はチーム所属ユーザーごとの合計を返す（所有者帰属のみ）。
	// sinceがゼロ値でない場合はdate >= sinceに絞り込む。
	TeamLeaderboard(ctx context.Context, teamID string, since time.Time) ([]LeaderboardRow, error)
}

// CredentialRepository はローカルIdPの認証情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByID は指定IDの認証情報を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Credential, error)

	// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// Create は認証情報を作成する。メールアドレス重複の場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, cred *model.Credential) error

	// Update はパスワードハッシュとメタデータを更新する。該当行が無い場合はErrNotFoundを返す。
	Update(ctx context.Context, cred *model.Credential) error

	// List は認証情報を作成日時順にページングして返す。
	List(ctx context.Context, limit, offset int) ([]*model.Credential, error)
}

// SessionTotals は練習記録の件数と距離・時間の合計。
// NULLの距離・時間は0として扱う。
type SessionTotals struct {
	Count    int
	Distance int64
	Duration int64
}

// StrokeCount は泳法ごとの件数。
type StrokeCount struct {
	Stroke model.Stroke
	Count  int
}

// WorkoutTypeCount は練習種別ごとの件数。
type WorkoutTypeCount struct {
	WorkoutType model.WorkoutType
	Count       int
}

// LeaderboardRow はリーダーボードの1行。
type LeaderboardRow struct {
	UserID    string
	Username  string
	FirstName string
	LastName  string
	Avatar    string
	Sessions  int
	Distance  int64
	Duration  int64
}
