package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypeTeam はチームエンティティを表す。
	AggregateTypeTeam AggregateType = "Team"
	// AggregateTypeReport は週次レポートエンティティを表す。
	AggregateTypeReport AggregateType = "Report"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeNotificationRaised は通知イベントが発生したことを表す。
	// 各ドメインサービス（チーム管理・チャット・レポート生成）が発行し、
	// 通知サービスが購読して配信判定を行う。
	TypeNotificationRaised Type = "NotificationRaised"
	// TypeNotificationRead は通知が既読になったことを表す。
	TypeNotificationRead Type = "NotificationRead"
)

// Event はイベントフィードから取得する不変のイベントレコードを表す。
// イベントフィードはat-least-once配信であり、同じイベントが再配信される
// 可能性がある。冪等性はイベントIDをキーとして消費側で保証する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。重複排除のキーとして使用する。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// NotificationRaisedData はNotificationRaisedイベントのデータ。
type NotificationRaisedData struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// NotificationType は通知の種類（mention, teamInvite等）。
	NotificationType string `json:"notification_type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Link は通知クリック時の遷移先（省略可能）。
	Link string `json:"link,omitempty"`
	// Metadata は通知に付随する任意のキー/値データ。
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NotificationReadData はNotificationReadイベントのデータ。
type NotificationReadData struct {
	// UserID は既読操作を行ったユーザーのID。
	UserID string `json:"user_id"`
	// NotificationID は既読になった通知のID。全件既読の場合は空。
	NotificationID string `json:"notification_id,omitempty"`
}
