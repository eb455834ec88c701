package db

import (
	"database/sql"
	"time"
)

// NotificationEvent は通知イベントのリードモデル行。
type NotificationEvent struct {
	// ID はイベントの一意識別子（UUID）。
	ID string
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// Type は通知の種類。
	Type string
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// Link は通知クリック時の遷移先。
	Link string
	// Metadata は通知に付随する任意のキー/値データ（JSON文字列）。
	Metadata string
	// Status は処理状態（pending, sent, suppressed, failed, read）。
	Status string
	// CreatedAt は通知イベントの発生日時。
	CreatedAt time.Time
	// ProcessedAt はpendingから遷移した日時。
	ProcessedAt sql.NullTime
	// ReadAt は既読になった日時。
	ReadAt sql.NullTime
}

// Preference はユーザーごとの通知設定行。
type Preference struct {
	// UserID は設定を所有するユーザーID。
	UserID string
	// NotificationsEnabled は通知全体のマスタースイッチ。
	NotificationsEnabled int64
	// ChatMode はチャット通知のモード（all, mentions_only, muted）。
	ChatMode string
	// TeamActivity はチーム活動カテゴリのトグル。
	TeamActivity int64
	// TaskUpdates はタスク更新カテゴリのトグル。
	TaskUpdates int64
	// SystemAlerts はシステム警告カテゴリのトグル。
	SystemAlerts int64
	// AccountSecurity はアカウントセキュリティカテゴリのトグル。
	AccountSecurity int64
	// UpdatedAt は設定の最終更新日時。
	UpdatedAt time.Time
}

// PushSubscription はデバイスごとのプッシュ購読行。
type PushSubscription struct {
	// UserID は購読を所有するユーザーID。
	UserID string
	// Endpoint はプロバイダが発行したデバイス固有の配送先URL。
	Endpoint string
	// PublicKey はペイロード暗号化用の公開鍵。
	PublicKey string
	// AuthSecret は認証用シークレット。
	AuthSecret string
	// CreatedAt は購読の作成日時。
	CreatedAt time.Time
	// UpdatedAt は購読の最終更新日時。
	UpdatedAt time.Time
}
