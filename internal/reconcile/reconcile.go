// Package reconcile はIdPのユーザーとローカルのusersテーブルの差分レポートを提供する。
// 差分の検出のみを行い、どちらのデータも変更しない。
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/laptrack/internal/identity"
	"github.com/hitoshi/laptrack/internal/model"
)

// DefaultPerPage はIdPのユーザー一覧を取得する際の1ページあたりの件数。
const DefaultPerPage = 100

// ProviderReader はレポート作成に必要なIdPの読み取り操作。
type ProviderReader interface {
	ListUsers(ctx context.Context, page, perPage int) ([]*identity.User, error)
	GetUser(ctx context.Context, id string) (*identity.User, error)
}

// LocalUserLister はローカルの全ユーザーを返す。
type LocalUserLister interface {
	ListAll(ctx context.Context) ([]*model.User, error)
}

// Entry は片側にのみ存在するユーザー。
type Entry struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Mismatch は同じメールアドレスでIDが異なるユーザー。
type Mismatch struct {
	Email      string `json:"email"`
	LocalID    string `json:"localId"`
	ProviderID string `json:"providerId"`
}

// Report は差分レポート。
type Report struct {
	GeneratedAt     time.Time  `json:"generatedAt"`
	ProviderUsers   int        `json:"providerUsers"`
	LocalUsers      int        `json:"localUsers"`
	MissingLocal    []Entry    `json:"missingLocal"`
	MissingProvider []Entry    `json:"missingProvider"`
	IDMismatches    []Mismatch `json:"idMismatches"`
}

// Clean は差分が無いかを返す。
func (r *Report) Clean() bool {
	return len(r.MissingLocal) == 0 && len(r.MissingProvider) == 0 && len(r.IDMismatches) == 0
}

// Job は差分レポートを作成する読み取り専用ジョブ。
type Job struct {
	provider ProviderReader
	users    LocalUserLister
	logger   *slog.Logger
	PerPage  int
	now      func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(provider ProviderReader, users LocalUserLister, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		provider: provider,
		users:    users,
		logger:   logger,
		PerPage:  DefaultPerPage,
		now:      time.Now,
	}
}

// Run はIdPとローカルのユーザーを突き合わせてレポートを返す。
//
//   - MissingLocal: IdPに存在し、同じIDのローカル行もメールアドレスが一致するローカル行も無い
//   - MissingProvider: ローカルに存在し、GetUserで確認してもIdPに存在しない
//   - IDMismatches: 同じメールアドレスでIDが異なる
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := j.now()

	// 1. IdPのユーザーをページ単位で全件取得
	providerUsers, err := j.listProviderUsers(ctx)
	if err != nil {
		return nil, err
	}

	// 2. ローカルの全ユーザーを取得
	localUsers, err := j.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ローカルユーザーの取得に失敗: %w", err)
	}

	report := &Report{
		GeneratedAt:     start.UTC(),
		ProviderUsers:   len(providerUsers),
		LocalUsers:      len(localUsers),
		MissingLocal:    []Entry{},
		MissingProvider: []Entry{},
		IDMismatches:    []Mismatch{},
	}

	localByID := make(map[string]*model.User, len(localUsers))
	localByEmail := make(map[string]*model.User, len(localUsers))
	for _, u := range localUsers {
		localByID[u.ID] = u
		localByEmail[normalizeEmail(u.Email)] = u
	}
	providerByID := make(map[string]*identity.User, len(providerUsers))
	for _, pu := range providerUsers {
		providerByID[pu.ID] = pu
	}

	// 3. IdP側から突き合わせ
	mismatchedLocal := make(map[string]bool)
	for _, pu := range providerUsers {
		if _, ok := localByID[pu.ID]; ok {
			continue
		}
		if lu, ok := localByEmail[normalizeEmail(pu.Email)]; ok {
			report.IDMismatches = append(report.IDMismatches, Mismatch{
				Email:      lu.Email,
				LocalID:    lu.ID,
				ProviderID: pu.ID,
			})
			mismatchedLocal[lu.ID] = true
			continue
		}
		report.MissingLocal = append(report.MissingLocal, Entry{ID: pu.ID, Email: pu.Email})
	}

	// 4. ローカル側から突き合わせ。一覧に無いIDはGetUserで存在を確認する
	for _, lu := range localUsers {
		if _, ok := providerByID[lu.ID]; ok || mismatchedLocal[lu.ID] {
			continue
		}
		_, err := j.provider.GetUser(ctx, lu.ID)
		switch {
		case errors.Is(err, identity.ErrUserNotFound):
			report.MissingProvider = append(report.MissingProvider, Entry{ID: lu.ID, Email: lu.Email})
		case err != nil:
			return nil, fmt.Errorf("IdPユーザーの確認に失敗 (id=%s): %w", lu.ID, err)
		default:
			// 一覧取得後に作成されたユーザー
			j.logger.Debug("provider user found on confirmation", slog.String("user_id", lu.ID))
		}
	}

	sortEntries(report.MissingLocal)
	sortEntries(report.MissingProvider)
	sort.Slice(report.IDMismatches, func(a, b int) bool {
		return report.IDMismatches[a].Email < report.IDMismatches[b].Email
	})

	j.logger.Info("reconciliation report generated",
		slog.Int("provider_users", report.ProviderUsers),
		slog.Int("local_users", report.LocalUsers),
		slog.Int("missing_local", len(report.MissingLocal)),
		slog.Int("missing_provider", len(report.MissingProvider)),
		slog.Int("id_mismatches", len(report.IDMismatches)),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return report, nil
}

func (j *Job) listProviderUsers(ctx context.Context) ([]*identity.User, error) {
	perPage := j.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	var all []*identity.User
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := j.provider.ListUsers(ctx, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("IdPユーザー一覧の取得に失敗 (page=%d): %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

// WriteJSON はレポートを整形済みJSONとして書き込む。
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(a, b int) bool { return entries[a].Email < entries[b].Email })
}
