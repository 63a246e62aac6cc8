package model

import "time"

// Credential はローカルIdPが保持するアカウント情報を表す。
// PasswordHashが空のアカウントはGoogleサインインでのみ作成され、パスワードでログインできない。
type Credential struct {
	ID           string
	Email        string
	PasswordHash string
	Username     string
	FirstName    string
	LastName     string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
