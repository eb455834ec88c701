package db

import (
	"context"
	"time"
)

// GetPreference は指定ユーザーの通知設定を取得する。
// 行が存在しない場合はsql.ErrNoRowsを返す。呼び出し側は
// 行の不在を「全デフォルト有効」として扱う。
func (q *Queries) GetPreference(ctx context.Context, userID string) (Preference, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, notifications_enabled, chat_mode,
		       team_activity, task_updates, system_alerts, account_security, updated_at
		FROM preferences
		WHERE user_id = ?
	`, userID)
	var p Preference
	err := row.Scan(&p.UserID, &p.NotificationsEnabled, &p.ChatMode,
		&p.TeamActivity, &p.TaskUpdates, &p.SystemAlerts, &p.AccountSecurity, &p.UpdatedAt)
	return p, err
}

// UpsertPreferenceParams はUpsertPreferenceのパラメータ。
type UpsertPreferenceParams struct {
	// UserID は設定を所有するユーザーID。
	UserID string
	// NotificationsEnabled は通知全体のマスタースイッチ。
	NotificationsEnabled int64
	// ChatMode はチャット通知のモード。
	ChatMode string
	// TeamActivity はチーム活動カテゴリのトグル。
	TeamActivity int64
	// TaskUpdates はタスク更新カテゴリのトグル。
	TaskUpdates int64
	// SystemAlerts はシステム警告カテゴリのトグル。
	SystemAlerts int64
	// AccountSecurity はアカウントセキュリティカテゴリのトグル。
	AccountSecurity int64
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// UpsertPreference はユーザーの通知設定を挿入または更新する。
func (q *Queries) UpsertPreference(ctx context.Context, arg UpsertPreferenceParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, notifications_enabled, chat_mode,
		                         team_activity, task_updates, system_alerts, account_security, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			notifications_enabled = excluded.notifications_enabled,
			chat_mode = excluded.chat_mode,
			team_activity = excluded.team_activity,
			task_updates = excluded.task_updates,
			system_alerts = excluded.system_alerts,
			account_security = excluded.account_security,
			updated_at = excluded.updated_at
	`, arg.UserID, arg.NotificationsEnabled, arg.ChatMode,
		arg.TeamActivity, arg.TaskUpdates, arg.SystemAlerts, arg.AccountSecurity, arg.UpdatedAt)
	return err
}
