package db

import (
	"context"
	"time"
)

// UpsertPushSubscriptionParams はUpsertPushSubscriptionのパラメータ。
type UpsertPushSubscriptionParams struct {
	// UserID は購読を所有するユーザーID。
	UserID string
	// Endpoint はデバイス固有の配送先URL。
	Endpoint string
	// PublicKey はペイロード暗号化用の公開鍵。
	PublicKey string
	// AuthSecret は認証用シークレット。
	AuthSecret string
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// UpsertPushSubscription はプッシュ購読を挿入または更新する。
// (user_id, endpoint)の一意制約により、同一デバイスの再購読は
// 行を複製せず鍵と更新日時のみ上書きする。
func (q *Queries) UpsertPushSubscription(ctx context.Context, arg UpsertPushSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, public_key, auth_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, endpoint) DO UPDATE SET
			public_key = excluded.public_key,
			auth_secret = excluded.auth_secret,
			updated_at = excluded.updated_at
	`, arg.UserID, arg.Endpoint, arg.PublicKey, arg.AuthSecret, arg.UpdatedAt, arg.UpdatedAt)
	return err
}

// ListPushSubscriptionsByUser は指定ユーザーの全プッシュ購読を返す。
func (q *Queries) ListPushSubscriptionsByUser(ctx context.Context, userID string) ([]PushSubscription, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, endpoint, public_key, auth_secret, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.UserID, &s.Endpoint, &s.PublicKey, &s.AuthSecret, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetPushSubscriptionParams はGetPushSubscriptionのパラメータ。
type GetPushSubscriptionParams struct {
	// UserID は購読を所有するユーザーID。
	UserID string
	// Endpoint はデバイス固有の配送先URL。
	Endpoint string
}

// GetPushSubscription は指定の(ユーザー, エンドポイント)の購読を取得する。
// 行が存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetPushSubscription(ctx context.Context, arg GetPushSubscriptionParams) (PushSubscription, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, endpoint, public_key, auth_secret, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = ? AND endpoint = ?
	`, arg.UserID, arg.Endpoint)
	var s PushSubscription
	err := row.Scan(&s.UserID, &s.Endpoint, &s.PublicKey, &s.AuthSecret, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// DeletePushSubscriptionParams はDeletePushSubscriptionのパラメータ。
type DeletePushSubscriptionParams struct {
	// UserID は購読を所有するユーザーID。
	UserID string
	// Endpoint はデバイス固有の配送先URL。
	Endpoint string
}

// DeletePushSubscription は指定の購読行を削除する。
// 行が存在しなかった場合はfalseを返すが、エラーにはしない。
func (q *Queries) DeletePushSubscription(ctx context.Context, arg DeletePushSubscriptionParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM push_subscriptions
		WHERE user_id = ? AND endpoint = ?
	`, arg.UserID, arg.Endpoint)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
