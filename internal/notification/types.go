package notification

import (
	"time"

	notificationdb "github.com/nao1215/checkin/internal/notification/db"
)

// Type は通知の種類を表す。
type Type string

const (
	// TypeMention はチェックインコメントでのメンションを表す。
	TypeMention Type = "mention"
	// TypeChatMessage はチャットの通常メッセージを表す。
	TypeChatMessage Type = "chatMessage"
	// TypeChatMention はチャットでのメンションを表す。
	TypeChatMention Type = "chatMention"
	// TypeTeamInvite はチームへの招待を表す。
	TypeTeamInvite Type = "teamInvite"
	// TypeMemberJoined はチームへのメンバー参加を表す。
	TypeMemberJoined Type = "memberJoined"
	// TypeTaskAssigned はタスクの割り当てを表す。
	TypeTaskAssigned Type = "taskAssigned"
	// TypeReportReady は週次レポートの生成完了を表す。
	TypeReportReady Type = "reportReady"
	// TypeReminder はチェックイン提出のリマインダーを表す。
	TypeReminder Type = "reminder"
	// TypeSystem はシステムからのお知らせを表す。
	TypeSystem Type = "system"
	// TypeMaintenance はメンテナンス告知を表す。
	TypeMaintenance Type = "maintenance"
	// TypePasswordChanged はパスワード変更の通知を表す。
	TypePasswordChanged Type = "passwordChanged"
	// TypeNewDeviceLogin は新しいデバイスからのログイン通知を表す。
	TypeNewDeviceLogin Type = "newDeviceLogin"
)

// Category は設定トグルに対応する通知カテゴリを表す。
type Category string

const (
	// CategoryTeamActivity はチーム活動カテゴリ。
	CategoryTeamActivity Category = "teamActivity"
	// CategoryTaskUpdates はタスク更新カテゴリ。
	CategoryTaskUpdates Category = "taskUpdates"
	// CategorySystemAlerts はシステム警告カテゴリ。
	CategorySystemAlerts Category = "systemAlerts"
	// CategoryAccountSecurity はアカウントセキュリティカテゴリ。
	CategoryAccountSecurity Category = "accountSecurity"
)

// typeCategories は通知の種類からカテゴリトグルへの対応表。
// 新しい通知の種類を追加する場合はここに対応を追加する。
// 表にない種類（mention、チャット系）はカテゴリトグルの対象外。
var typeCategories = map[Type]Category{
	TypeTeamInvite:      CategoryTeamActivity,
	TypeMemberJoined:    CategoryTeamActivity,
	TypeTaskAssigned:    CategoryTaskUpdates,
	TypeReportReady:     CategoryTaskUpdates,
	TypeReminder:        CategoryTaskUpdates,
	TypeSystem:          CategorySystemAlerts,
	TypeMaintenance:     CategorySystemAlerts,
	TypePasswordChanged: CategoryAccountSecurity,
	TypeNewDeviceLogin:  CategoryAccountSecurity,
}

// CategoryOf は通知の種類に対応するカテゴリを返す。
// カテゴリトグルの対象外の種類の場合は第2戻り値がfalseになる。
func CategoryOf(t Type) (Category, bool) {
	c, ok := typeCategories[t]
	return c, ok
}

// isChatType はチャットモード設定の対象となる種類かどうかを返す。
func isChatType(t Type) bool {
	return t == TypeChatMessage || t == TypeChatMention
}

// ChatMode はチャット通知のモードを表す。
type ChatMode string

const (
	// ChatModeAll は全チャット通知を受け取るモード。
	ChatModeAll ChatMode = "all"
	// ChatModeMentionsOnly はメンションのみ受け取るモード。
	ChatModeMentionsOnly ChatMode = "mentions_only"
	// ChatModeMuted はチャット通知を受け取らないモード。
	ChatModeMuted ChatMode = "muted"
)

// Status は通知イベントの処理状態を表す。
type Status string

const (
	// StatusPending は未処理の状態。
	StatusPending Status = "pending"
	// StatusSent はアプリ内配信が完了した状態。
	StatusSent Status = "sent"
	// StatusSuppressed は設定により配信が抑制された状態。
	StatusSuppressed Status = "suppressed"
	// StatusFailed は配信処理が失敗した状態。
	StatusFailed Status = "failed"
	// StatusRead はユーザーが既読にした状態。sentからのみ遷移する。
	StatusRead Status = "read"
)

// Decision は配信判定の結果を表す。
type Decision string

const (
	// DecisionDeliver は配信する判定。
	DecisionDeliver Decision = "deliver"
	// DecisionSuppress は配信しない判定。
	DecisionSuppress Decision = "suppress"
)

// Preferences はユーザーごとの通知設定。
// 設定行が存在しないユーザーにはDefaultPreferencesを適用する。
type Preferences struct {
	// NotificationsEnabled は通知全体のマスタースイッチ。
	NotificationsEnabled bool
	// ChatMode はチャット通知のモード。
	ChatMode ChatMode
	// TeamActivity はチーム活動カテゴリのトグル。
	TeamActivity bool
	// TaskUpdates はタスク更新カテゴリのトグル。
	TaskUpdates bool
	// SystemAlerts はシステム警告カテゴリのトグル。
	SystemAlerts bool
	// AccountSecurity はアカウントセキュリティカテゴリのトグル。
	AccountSecurity bool
}

// DefaultPreferences は設定行が存在しないユーザーに適用するデフォルト設定を返す。
// 全カテゴリ有効、チャットは全受信。
func DefaultPreferences() Preferences {
	return Preferences{
		NotificationsEnabled: true,
		ChatMode:             ChatModeAll,
		TeamActivity:         true,
		TaskUpdates:          true,
		SystemAlerts:         true,
		AccountSecurity:      true,
	}
}

// categoryEnabled は指定カテゴリのトグル値を返す。
func (p Preferences) categoryEnabled(c Category) bool {
	switch c {
	case CategoryTeamActivity:
		return p.TeamActivity
	case CategoryTaskUpdates:
		return p.TaskUpdates
	case CategorySystemAlerts:
		return p.SystemAlerts
	case CategoryAccountSecurity:
		return p.AccountSecurity
	default:
		return true
	}
}

// preferencesFromRow はDB行をドメインの設定に変換する。
func preferencesFromRow(row notificationdb.Preference) Preferences {
	return Preferences{
		NotificationsEnabled: row.NotificationsEnabled != 0,
		ChatMode:             ChatMode(row.ChatMode),
		TeamActivity:         row.TeamActivity != 0,
		TaskUpdates:          row.TaskUpdates != 0,
		SystemAlerts:         row.SystemAlerts != 0,
		AccountSecurity:      row.AccountSecurity != 0,
	}
}

// Event は処理対象の通知イベント。
// イベントフィードまたは内部APIから受け取り、リードモデルに取り込む。
type Event struct {
	// ID はイベントの一意識別子。重複排除のキー。
	ID string
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// Type は通知の種類。
	Type Type
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// Link は通知クリック時の遷移先。
	Link string
	// Metadata は通知に付随する任意のキー/値データ。
	Metadata map[string]string
	// CreatedAt は通知イベントの発生日時。
	CreatedAt time.Time
}
