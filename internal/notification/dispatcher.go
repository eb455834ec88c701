package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	notificationdb "github.com/nao1215/checkin/internal/notification/db"
	"github.com/nao1215/checkin/pkg/hub"
	"github.com/nao1215/checkin/pkg/push"
)

// Dispatcher は配信判定済みの通知イベントを各チャネルへ配送する。
// アプリ内配信（リードモデルへの反映と再計算シグナル）が成功基準であり、
// プッシュ配送はベストエフォートの付加機能として扱う。
type Dispatcher struct {
	// queries はデータアクセス層。
	queries *notificationdb.Queries
	// provider はプッシュプロバイダへのクライアント。
	provider push.Provider
	// hub は受信者単位の再計算シグナルハブ。
	hub *hub.Hub
}

// NewDispatcher は新しいディスパッチャを生成する。
func NewDispatcher(queries *notificationdb.Queries, provider push.Provider, h *hub.Hub) *Dispatcher {
	return &Dispatcher{
		queries:  queries,
		provider: provider,
		hub:      h,
	}
}

// DispatchResult は1件の通知イベント処理の結果。
type DispatchResult struct {
	// EventID は処理対象イベントのID。
	EventID string `json:"event_id"`
	// Decision は配信判定の結果。
	Decision Decision `json:"decision,omitempty"`
	// Status は処理後のイベント状態。
	Status Status `json:"status"`
	// AlreadyProcessed は冪等性ガードにより処理をスキップしたかどうか。
	AlreadyProcessed bool `json:"already_processed,omitempty"`
	// PushAttempts はプッシュ送信を試行したエンドポイント数。
	PushAttempts int `json:"push_attempts"`
	// PushFailures はプッシュ送信に失敗したエンドポイント数。
	PushFailures int `json:"push_failures"`
	// PrunedEndpoints は失効により削除した購読数。
	PrunedEndpoints int `json:"pruned_endpoints"`
}

// RouteAndDispatch は1件の通知イベントを取り込み、配信判定と配送を行う。
// 同じイベントIDの再処理は冪等であり、2回目以降は副作用なしで現在の状態を返す。
// イベントフィードの再配信と、同一イベントへの並行呼び出しの両方をこのガードで吸収する。
func (d *Dispatcher) RouteAndDispatch(ctx context.Context, ev Event) (DispatchResult, error) {
	result := DispatchResult{EventID: ev.ID}

	metadata := "{}"
	if len(ev.Metadata) > 0 {
		jsonBytes, err := json.Marshal(ev.Metadata)
		if err != nil {
			return result, fmt.Errorf("メタデータのシリアライズに失敗: %w", err)
		}
		metadata = string(jsonBytes)
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// 既存行があっても構わない（再配信または前回処理の中断）。
	// 状態遷移の条件付きUPDATEが二重処理を防ぐ。
	if _, err := d.queries.InsertEvent(ctx, notificationdb.InsertEventParams{
		ID:          ev.ID,
		RecipientID: ev.RecipientID,
		Type:        string(ev.Type),
		Title:       ev.Title,
		Body:        ev.Body,
		Link:        ev.Link,
		Metadata:    metadata,
		CreatedAt:   createdAt,
	}); err != nil {
		return result, fmt.Errorf("通知イベントの保存に失敗: %w", err)
	}

	// 受信者が特定できないイベントは配信不能として終端させ、
	// ポーリングのたびに再処理されることを防ぐ。
	if ev.RecipientID == "" {
		return d.finalize(ctx, ev, DecisionSuppress, StatusFailed, result)
	}

	decision := d.route(ctx, ev)
	result.Decision = decision

	if decision == DecisionSuppress {
		return d.finalize(ctx, ev, decision, StatusSuppressed, result)
	}

	// アプリ内配信: pending→sentの遷移自体がリードモデルへの反映であり、
	// 未読件数はsent行の集計として導出される。
	transitioned, err := d.queries.TransitionFromPending(ctx, notificationdb.TransitionFromPendingParams{
		ID:          ev.ID,
		Status:      string(StatusSent),
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return result, fmt.Errorf("イベント状態の遷移に失敗: %w", err)
	}
	if !transitioned {
		return d.alreadyProcessed(ctx, ev.ID, result)
	}
	result.Status = StatusSent

	// 未読件数の再計算シグナルを送る。ペイロードは運ばず、購読側が再クエリする。
	d.hub.Notify(ev.RecipientID)

	// プッシュ配送はベストエフォート。1エンドポイントの失敗は他のエンドポイントにも
	// イベント全体の成否にも影響しない。
	d.fanOutPush(ctx, ev, &result)

	return result, nil
}

// route は設定を取得して配信判定を行う。
// 設定行が存在しない場合はデフォルト設定を適用する。
// 設定の取得自体に失敗した場合は縮退判定にフォールバックする。
func (d *Dispatcher) route(ctx context.Context, ev Event) Decision {
	row, err := d.queries.GetPreference(ctx, ev.RecipientID)
	switch {
	case err == nil:
		return Route(ev.Type, preferencesFromRow(row))
	case errors.Is(err, sql.ErrNoRows):
		return Route(ev.Type, DefaultPreferences())
	default:
		log.Printf("[Dispatcher] 通知設定の取得に失敗、縮退判定を適用 (recipient=%s): %v", ev.RecipientID, err)
		return RouteWithoutPreferences(ev.Type)
	}
}

// finalize はイベントを配信なしの終端状態（suppressed, failed）へ遷移させる。
func (d *Dispatcher) finalize(ctx context.Context, ev Event, decision Decision, status Status, result DispatchResult) (DispatchResult, error) {
	result.Decision = decision
	transitioned, err := d.queries.TransitionFromPending(ctx, notificationdb.TransitionFromPendingParams{
		ID:          ev.ID,
		Status:      string(status),
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return result, fmt.Errorf("イベント状態の遷移に失敗: %w", err)
	}
	if !transitioned {
		return d.alreadyProcessed(ctx, ev.ID, result)
	}
	result.Status = status
	return result, nil
}

// alreadyProcessed は冪等性ガードで処理をスキップした場合の結果を組み立てる。
// 二重処理の試行はログに記録するのみで、リトライはしない。
func (d *Dispatcher) alreadyProcessed(ctx context.Context, eventID string, result DispatchResult) (DispatchResult, error) {
	result.AlreadyProcessed = true

	current, err := d.queries.GetEventByID(ctx, eventID)
	if err != nil {
		return result, fmt.Errorf("処理済みイベントの取得に失敗: %w", err)
	}
	result.Status = Status(current.Status)

	log.Printf("[Dispatcher] 冪等性ガードにより処理をスキップ (event=%s, status=%s)", eventID, current.Status)
	return result, nil
}

// fanOutPush は受信者の全プッシュ購読へ通知を送信する。
// 失効したエンドポイントは購読行を削除して自己修復する。
func (d *Dispatcher) fanOutPush(ctx context.Context, ev Event, result *DispatchResult) {
	subs, err := d.queries.ListPushSubscriptionsByUser(ctx, ev.RecipientID)
	if err != nil {
		log.Printf("[Dispatcher] プッシュ購読の取得に失敗 (recipient=%s): %v", ev.RecipientID, err)
		return
	}

	payload := push.Payload{
		Title: ev.Title,
		Body:  ev.Body,
		Link:  ev.Link,
		Tag:   string(ev.Type),
	}

	for _, sub := range subs {
		result.PushAttempts++
		err := d.provider.Send(ctx, push.Subscription{
			Endpoint:   sub.Endpoint,
			PublicKey:  sub.PublicKey,
			AuthSecret: sub.AuthSecret,
		}, payload)
		if err == nil {
			continue
		}

		result.PushFailures++
		if errors.Is(err, push.ErrSubscriptionGone) {
			if _, delErr := d.queries.DeletePushSubscription(ctx, notificationdb.DeletePushSubscriptionParams{
				UserID:   sub.UserID,
				Endpoint: sub.Endpoint,
			}); delErr != nil {
				log.Printf("[Dispatcher] 失効購読の削除に失敗 (endpoint=%s): %v", sub.Endpoint, delErr)
				continue
			}
			result.PrunedEndpoints++
			log.Printf("[Dispatcher] 失効したプッシュ購読を削除 (recipient=%s, endpoint=%s)", ev.RecipientID, sub.Endpoint)
			continue
		}
		log.Printf("[Dispatcher] プッシュ送信に失敗 (recipient=%s, endpoint=%s): %v", ev.RecipientID, sub.Endpoint, err)
	}
}
