package db

import (
	"context"
	"database/sql"
	"time"
)

// InsertEventParams はInsertEventのパラメータ。
type InsertEventParams struct {
	// ID はイベントの一意識別子。
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
	// CreatedAt は通知イベントの発生日時。
	CreatedAt time.Time
}

// InsertEvent は通知イベントをstatus=pendingで挿入する。
// 同じIDの行が既に存在する場合は何もせずfalseを返す（再配信の吸収）。
func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO notification_events (id, recipient_id, type, title, body, link, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)
		ON CONFLICT(id) DO NOTHING
	`, arg.ID, arg.RecipientID, arg.Type, arg.Title, arg.Body, arg.Link, arg.Metadata, arg.CreatedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetEventByID は指定IDの通知イベントを取得する。
func (q *Queries) GetEventByID(ctx context.Context, id string) (NotificationEvent, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, recipient_id, type, title, body, link, metadata, status, created_at, processed_at, read_at
		FROM notification_events
		WHERE id = ?
	`, id)
	var e NotificationEvent
	err := row.Scan(&e.ID, &e.RecipientID, &e.Type, &e.Title, &e.Body, &e.Link,
		&e.Metadata, &e.Status, &e.CreatedAt, &e.ProcessedAt, &e.ReadAt)
	return e, err
}

// TransitionFromPendingParams はTransitionFromPendingのパラメータ。
type TransitionFromPendingParams struct {
	// ID は対象イベントのID。
	ID string
	// Status は遷移先の状態（sent, suppressed, failed）。
	Status string
	// ProcessedAt は遷移日時。
	ProcessedAt time.Time
}

// TransitionFromPending はイベントをpendingから指定の終端状態へ遷移させる。
// 既にpending以外の場合は何もせずfalseを返す。この条件付きUPDATEが
// 重複処理を防ぐ冪等性ガードになる（先に遷移した側が勝つ）。
func (q *Queries) TransitionFromPending(ctx context.Context, arg TransitionFromPendingParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE notification_events
		SET status = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'
	`, arg.Status, arg.ProcessedAt, arg.ID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListDeliveredByRecipient は配信済み（sentまたはread）の通知一覧を新しい順で返す。
func (q *Queries) ListDeliveredByRecipient(ctx context.Context, recipientID string) ([]NotificationEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, title, body, link, metadata, status, created_at, processed_at, read_at
		FROM notification_events
		WHERE recipient_id = ? AND status IN ('sent', 'read')
		ORDER BY created_at DESC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUnreadByRecipient は未読（sent）の通知一覧を新しい順で返す。
func (q *Queries) ListUnreadByRecipient(ctx context.Context, recipientID string) ([]NotificationEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, title, body, link, metadata, status, created_at, processed_at, read_at
		FROM notification_events
		WHERE recipient_id = ? AND status = 'sent'
		ORDER BY created_at DESC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountUnread は未読（sent）の通知件数を返す。
func (q *Queries) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_events
		WHERE recipient_id = ? AND status = 'sent'
	`, recipientID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

// MarkReadParams はMarkReadのパラメータ。
type MarkReadParams struct {
	// ID は対象イベントのID。
	ID string
	// ReadAt は既読日時。
	ReadAt time.Time
}

// MarkRead は指定の通知をsentからreadへ遷移させる。
// 既にreadの場合や未配信の場合は何もせずfalseを返す。
func (q *Queries) MarkRead(ctx context.Context, arg MarkReadParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE notification_events
		SET status = 'read', read_at = ?
		WHERE id = ? AND status = 'sent'
	`, arg.ReadAt, arg.ID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkAllReadParams はMarkAllReadのパラメータ。
type MarkAllReadParams struct {
	// RecipientID は対象の受信者ID。
	RecipientID string
	// ReadAt は既読日時。
	ReadAt time.Time
}

// MarkAllRead は受信者の未読（sent）通知をすべてreadへ遷移させ、件数を返す。
// 単一のUPDATE文で実行するため、実行後に挿入された通知には影響しない。
func (q *Queries) MarkAllRead(ctx context.Context, arg MarkAllReadParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE notification_events
		SET status = 'read', read_at = ?
		WHERE recipient_id = ? AND status = 'sent'
	`, arg.ReadAt, arg.RecipientID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// scanEvents は複数行の結果をNotificationEventのスライスに変換する。
func scanEvents(rows *sql.Rows) ([]NotificationEvent, error) {
	var events []NotificationEvent
	for rows.Next() {
		var e NotificationEvent
		if err := rows.Scan(&e.ID, &e.RecipientID, &e.Type, &e.Title, &e.Body, &e.Link,
			&e.Metadata, &e.Status, &e.CreatedAt, &e.ProcessedAt, &e.ReadAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
