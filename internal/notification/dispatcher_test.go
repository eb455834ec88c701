package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	notificationdb "github.com/nao1215/checkin/internal/notification/db"
	"github.com/nao1215/checkin/pkg/hub"
	"github.com/nao1215/checkin/pkg/migration"
	"github.com/nao1215/checkin/pkg/push"
)

// fakeProvider はテスト用のプッシュプロバイダ。
// エンドポイントごとに返すエラーを設定でき、送信履歴を記録する。
type fakeProvider struct {
	mu sync.Mutex
	// errs はエンドポイントごとに返すエラー。未設定なら成功。
	errs map[string]error
	// sent は送信を試行したエンドポイントの履歴。
	sent []string
	// revoked は解除を試行したエンドポイントの履歴。
	revoked []string
}

func (f *fakeProvider) Send(_ context.Context, sub push.Subscription, _ push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	return f.errs[sub.Endpoint]
}

func (f *fakeProvider) Revoke(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, endpoint)
	return f.errs[endpoint]
}

func (f *fakeProvider) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// setupTestDispatcher はインメモリSQLite上にディスパッチャを構築する。
func setupTestDispatcher(t *testing.T) (*Dispatcher, *notificationdb.Queries, *fakeProvider, *hub.Hub) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	// インメモリDBは接続ごとに独立した空のDBになるため、接続を1つに固定する
	sqlDB.SetMaxOpenConns(1)

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	queries := notificationdb.New(sqlDB)
	provider := &fakeProvider{errs: map[string]error{}}
	h := hub.New()
	return NewDispatcher(queries, provider, h), queries, provider, h
}

// savePreferences はテスト用にユーザーの通知設定を保存するヘルパー関数。
func savePreferences(t *testing.T, queries *notificationdb.Queries, userID string, prefs Preferences) {
	t.Helper()
	err := queries.UpsertPreference(t.Context(), notificationdb.UpsertPreferenceParams{
		UserID:               userID,
		NotificationsEnabled: boolToInt(prefs.NotificationsEnabled),
		ChatMode:             string(prefs.ChatMode),
		TeamActivity:         boolToInt(prefs.TeamActivity),
		TaskUpdates:          boolToInt(prefs.TaskUpdates),
		SystemAlerts:         boolToInt(prefs.SystemAlerts),
		AccountSecurity:      boolToInt(prefs.AccountSecurity),
		UpdatedAt:            time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("テスト用通知設定の保存に失敗: %v", err)
	}
}

// saveSubscription はテスト用にプッシュ購読を保存するヘルパー関数。
func saveSubscription(t *testing.T, queries *notificationdb.Queries, userID, endpoint string) {
	t.Helper()
	err := queries.UpsertPushSubscription(t.Context(), notificationdb.UpsertPushSubscriptionParams{
		UserID:     userID,
		Endpoint:   endpoint,
		PublicKey:  "test-public-key",
		AuthSecret: "test-auth-secret",
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("テスト用プッシュ購読の保存に失敗: %v", err)
	}
}

// TestRouteAndDispatchDeliver は配信判定を通過したイベントの配送を検証する。
func TestRouteAndDispatchDeliver(t *testing.T) {
	t.Parallel()

	t.Run("設定行がないユーザーにはデフォルト設定で配信される", func(t *testing.T) {
		t.Parallel()
		d, queries, _, _ := setupTestDispatcher(t)

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeTeamInvite,
			Title:       "チームに招待されました",
			Body:        "開発チームへの招待が届いています",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		if result.Decision != DecisionDeliver {
			t.Errorf("Decision: got %s, want %s", result.Decision, DecisionDeliver)
		}
		if result.Status != StatusSent {
			t.Errorf("Status: got %s, want %s", result.Status, StatusSent)
		}

		count, err := queries.CountUnread(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("未読件数: got %d, want 1", count)
		}
	})

	t.Run("配信時に再計算シグナルが送られる", func(t *testing.T) {
		t.Parallel()
		d, _, _, h := setupTestDispatcher(t)

		signals, unsubscribe := h.Subscribe("user-1")
		defer unsubscribe()

		if _, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeMention,
			Title:       "メンションされました",
		}); err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		select {
		case <-signals:
		case <-time.After(time.Second):
			t.Error("再計算シグナルが届きませんでした")
		}
	})

	t.Run("受信者の全購読エンドポイントへプッシュ送信する", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)

		saveSubscription(t, queries, "user-1", "https://push.example.com/device-a")
		saveSubscription(t, queries, "user-1", "https://push.example.com/device-b")
		// 別ユーザーの購読には送信されない
		saveSubscription(t, queries, "user-2", "https://push.example.com/device-c")

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeReportReady,
			Title:       "週次レポートが完成しました",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		if result.PushAttempts != 2 {
			t.Errorf("PushAttempts: got %d, want 2", result.PushAttempts)
		}
		if result.PushFailures != 0 {
			t.Errorf("PushFailures: got %d, want 0", result.PushFailures)
		}
		if provider.sentCount() != 2 {
			t.Errorf("送信履歴: got %d, want 2", provider.sentCount())
		}
	})
}

// TestRouteAndDispatchIdempotency は同一イベントの再処理が冪等であることを検証する。
func TestRouteAndDispatchIdempotency(t *testing.T) {
	t.Parallel()

	t.Run("同じイベントIDの再処理は副作用なしでスキップされる", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)
		saveSubscription(t, queries, "user-1", "https://push.example.com/device-a")

		ev := Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeTaskAssigned,
			Title:       "タスクが割り当てられました",
		}

		first, err := d.RouteAndDispatch(t.Context(), ev)
		if err != nil {
			t.Fatalf("1回目のRouteAndDispatchに失敗: %v", err)
		}
		if first.AlreadyProcessed {
			t.Error("1回目の処理がスキップ扱いになっています")
		}

		second, err := d.RouteAndDispatch(t.Context(), ev)
		if err != nil {
			t.Fatalf("2回目のRouteAndDispatchに失敗: %v", err)
		}
		if !second.AlreadyProcessed {
			t.Error("2回目の処理がスキップされていません")
		}
		if second.Status != StatusSent {
			t.Errorf("2回目のStatus: got %s, want %s", second.Status, StatusSent)
		}

		// プッシュは1回目の分のみ
		if provider.sentCount() != 1 {
			t.Errorf("送信履歴: got %d, want 1", provider.sentCount())
		}

		// 通知行も1件のまま
		count, err := queries.CountUnread(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("未読件数: got %d, want 1", count)
		}
	})

	t.Run("既読後に再処理しても未読に戻らない", func(t *testing.T) {
		t.Parallel()
		d, queries, _, _ := setupTestDispatcher(t)

		ev := Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeMention,
			Title:       "メンションされました",
		}
		if _, err := d.RouteAndDispatch(t.Context(), ev); err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		marked, err := queries.MarkRead(t.Context(), notificationdb.MarkReadParams{
			ID:     "event-1",
			ReadAt: time.Now().UTC(),
		})
		if err != nil || !marked {
			t.Fatalf("既読処理に失敗: marked=%v, err=%v", marked, err)
		}

		result, err := d.RouteAndDispatch(t.Context(), ev)
		if err != nil {
			t.Fatalf("再処理に失敗: %v", err)
		}
		if !result.AlreadyProcessed {
			t.Error("再処理がスキップされていません")
		}
		if result.Status != StatusRead {
			t.Errorf("Status: got %s, want %s", result.Status, StatusRead)
		}

		count, err := queries.CountUnread(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("未読件数: got %d, want 0", count)
		}
	})
}

// TestRouteAndDispatchSuppress は設定による配信抑制を検証する。
func TestRouteAndDispatchSuppress(t *testing.T) {
	t.Parallel()

	t.Run("カテゴリトグルが無効なら抑制され未読に現れない", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)
		saveSubscription(t, queries, "user-1", "https://push.example.com/device-a")

		prefs := DefaultPreferences()
		prefs.TaskUpdates = false
		savePreferences(t, queries, "user-1", prefs)

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeReminder,
			Title:       "チェックインのリマインダー",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		if result.Decision != DecisionSuppress {
			t.Errorf("Decision: got %s, want %s", result.Decision, DecisionSuppress)
		}
		if result.Status != StatusSuppressed {
			t.Errorf("Status: got %s, want %s", result.Status, StatusSuppressed)
		}
		if provider.sentCount() != 0 {
			t.Errorf("抑制されたのにプッシュ送信されています: %d件", provider.sentCount())
		}

		count, err := queries.CountUnread(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("未読件数: got %d, want 0", count)
		}
	})

	t.Run("抑制されたイベントも記録され再処理はスキップされる", func(t *testing.T) {
		t.Parallel()
		d, queries, _, _ := setupTestDispatcher(t)

		prefs := DefaultPreferences()
		prefs.ChatMode = ChatModeMuted
		savePreferences(t, queries, "user-1", prefs)

		ev := Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeChatMessage,
			Title:       "新しいメッセージ",
		}
		if _, err := d.RouteAndDispatch(t.Context(), ev); err != nil {
			t.Fatalf("1回目のRouteAndDispatchに失敗: %v", err)
		}

		second, err := d.RouteAndDispatch(t.Context(), ev)
		if err != nil {
			t.Fatalf("2回目のRouteAndDispatchに失敗: %v", err)
		}
		if !second.AlreadyProcessed {
			t.Error("2回目の処理がスキップされていません")
		}
		if second.Status != StatusSuppressed {
			t.Errorf("Status: got %s, want %s", second.Status, StatusSuppressed)
		}
	})
}

// TestRouteAndDispatchFailure は配信不能イベントの終端処理を検証する。
func TestRouteAndDispatchFailure(t *testing.T) {
	t.Parallel()

	t.Run("受信者不明のイベントはfailedで終端する", func(t *testing.T) {
		t.Parallel()
		d, queries, _, _ := setupTestDispatcher(t)

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:    "event-1",
			Type:  TypeSystem,
			Title: "受信者のないお知らせ",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}
		if result.Status != StatusFailed {
			t.Errorf("Status: got %s, want %s", result.Status, StatusFailed)
		}

		// 終端済みなので再処理はスキップされる
		second, err := d.RouteAndDispatch(t.Context(), Event{
			ID:    "event-1",
			Type:  TypeSystem,
			Title: "受信者のないお知らせ",
		})
		if err != nil {
			t.Fatalf("再処理に失敗: %v", err)
		}
		if !second.AlreadyProcessed {
			t.Error("再処理がスキップされていません")
		}

		e, err := queries.GetEventByID(t.Context(), "event-1")
		if err != nil {
			t.Fatalf("イベントの取得に失敗: %v", err)
		}
		if e.Status != string(StatusFailed) {
			t.Errorf("DB上のStatus: got %s, want %s", e.Status, StatusFailed)
		}
	})
}

// TestFanOutPushPruning は失効したプッシュ購読の自動削除を検証する。
func TestFanOutPushPruning(t *testing.T) {
	t.Parallel()

	t.Run("失効エンドポイントの購読行は削除される", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)

		goneEndpoint := "https://push.example.com/gone"
		aliveEndpoint := "https://push.example.com/alive"
		saveSubscription(t, queries, "user-1", goneEndpoint)
		saveSubscription(t, queries, "user-1", aliveEndpoint)
		provider.errs[goneEndpoint] = fmt.Errorf("endpoint=%s: %w", goneEndpoint, push.ErrSubscriptionGone)

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeMention,
			Title:       "メンションされました",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		if result.Status != StatusSent {
			t.Errorf("Status: got %s, want %s", result.Status, StatusSent)
		}
		if result.PushAttempts != 2 {
			t.Errorf("PushAttempts: got %d, want 2", result.PushAttempts)
		}
		if result.PrunedEndpoints != 1 {
			t.Errorf("PrunedEndpoints: got %d, want 1", result.PrunedEndpoints)
		}

		// 失効した購読だけが削除されている
		subs, err := queries.ListPushSubscriptionsByUser(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("購読一覧の取得に失敗: %v", err)
		}
		if len(subs) != 1 {
			t.Fatalf("購読数: got %d, want 1", len(subs))
		}
		if subs[0].Endpoint != aliveEndpoint {
			t.Errorf("残存購読: got %s, want %s", subs[0].Endpoint, aliveEndpoint)
		}
	})

	t.Run("一時的な送信失敗では購読行を削除しない", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)

		endpoint := "https://push.example.com/flaky"
		saveSubscription(t, queries, "user-1", endpoint)
		provider.errs[endpoint] = errors.New("一時的なネットワークエラー")

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeMention,
			Title:       "メンションされました",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}

		if result.PushFailures != 1 {
			t.Errorf("PushFailures: got %d, want 1", result.PushFailures)
		}
		if result.PrunedEndpoints != 0 {
			t.Errorf("PrunedEndpoints: got %d, want 0", result.PrunedEndpoints)
		}

		subs, err := queries.ListPushSubscriptionsByUser(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("購読一覧の取得に失敗: %v", err)
		}
		if len(subs) != 1 {
			t.Errorf("購読数: got %d, want 1", len(subs))
		}
	})

	t.Run("プッシュ失敗してもアプリ内配信は成功のまま", func(t *testing.T) {
		t.Parallel()
		d, queries, provider, _ := setupTestDispatcher(t)

		endpoint := "https://push.example.com/broken"
		saveSubscription(t, queries, "user-1", endpoint)
		provider.errs[endpoint] = errors.New("プロバイダ障害")

		result, err := d.RouteAndDispatch(t.Context(), Event{
			ID:          "event-1",
			RecipientID: "user-1",
			Type:        TypeTeamInvite,
			Title:       "チームに招待されました",
		})
		if err != nil {
			t.Fatalf("RouteAndDispatchに失敗: %v", err)
		}
		if result.Status != StatusSent {
			t.Errorf("Status: got %s, want %s", result.Status, StatusSent)
		}

		count, err := queries.CountUnread(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("未読件数: got %d, want 1", count)
		}
	})
}
