package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/checkin/pkg/event"
	"github.com/nao1215/checkin/pkg/httpclient"
)

// Consumer はイベントフィードをポーリングし、通知イベントをディスパッチャへ
// 流し込むバックグラウンドプロセス。フィードはat-least-once配信であり、
// 再配信はディスパッチャの冪等性ガードで吸収される。
type Consumer struct {
	// dispatcher は通知イベントの処理先。
	dispatcher *Dispatcher
	// client はイベントフィードとの通信用HTTPクライアント。
	client *httpclient.Client
	// interval はポーリング間隔。
	interval time.Duration
	// lastTimestamp は最後に取得したイベントのタイムスタンプ。
	lastTimestamp time.Time
	// mu はlastTimestampへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewConsumer は新しいConsumerを生成する。
// eventSourceURL はイベントフィードのベースURL（例: "http://localhost:8084"）。
func NewConsumer(dispatcher *Dispatcher, eventSourceURL string) *Consumer {
	return &Consumer{
		dispatcher:    dispatcher,
		client:        httpclient.New(eventSourceURL),
		interval:      2 * time.Second,
		lastTimestamp: time.Time{},
	}
}

// Start はバックグラウンドでイベントフィードのポーリングを開始する。
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		log.Println("[Consumer] イベントフィードのポーリングを開始します")
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[Consumer] ポーリングを停止しました")
				return
			case <-ticker.C:
				if err := c.poll(ctx); err != nil {
					log.Printf("[Consumer] ポーリングエラー: %v", err)
				}
			}
		}
	}()
}

// Stop はバックグラウンドのポーリングを停止する。
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// feedEvent はイベントフィードAPIから返されるイベントのJSON構造。
type feedEvent struct {
	// ID はイベントの一意識別子。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType string `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType string `json:"event_type"`
	// Data はイベント固有のデータ（JSON文字列）。
	Data string `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// poll はイベントフィードから新しいイベントを取得して処理する。
func (c *Consumer) poll(ctx context.Context) error {
	c.mu.Lock()
	since := c.lastTimestamp
	c.mu.Unlock()

	sinceStr := since.UTC().Format(time.RFC3339)
	path := fmt.Sprintf("/api/v1/events/since?since=%s", url.QueryEscape(sinceStr))

	var events []feedEvent
	if err := c.client.GetJSON(ctx, path, &events); err != nil {
		return fmt.Errorf("イベントフィードからの取得に失敗: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	var latestTimestamp time.Time
	var processedCount int
	for _, ev := range events {
		createdAt, err := time.Parse(time.RFC3339, ev.CreatedAt)
		if err == nil && createdAt.After(latestTimestamp) {
			latestTimestamp = createdAt
		}

		if err := c.processEvent(ctx, ev); err != nil {
			log.Printf("[Consumer] イベント処理エラー (id=%s, type=%s): %v", ev.ID, ev.EventType, err)
			continue
		}
		processedCount++
	}

	if !latestTimestamp.IsZero() {
		c.mu.Lock()
		// 同じイベントを再取得しないように1ナノ秒進める
		c.lastTimestamp = latestTimestamp.Add(1 * time.Nanosecond)
		c.mu.Unlock()
	}

	log.Printf("[Consumer] %d件のイベントを処理しました", processedCount)
	return nil
}

// processEvent は1つのフィードイベントをディスパッチャへ渡す。
// NotificationRaised以外のイベントは対象外として無視する。
func (c *Consumer) processEvent(ctx context.Context, ev feedEvent) error {
	if event.Type(ev.EventType) != event.TypeNotificationRaised {
		return nil
	}

	var data event.NotificationRaisedData
	if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
		return fmt.Errorf("NotificationRaisedDataのデシリアライズに失敗: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, ev.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	result, err := c.dispatcher.RouteAndDispatch(ctx, Event{
		ID:          ev.ID,
		RecipientID: data.RecipientID,
		Type:        Type(data.NotificationType),
		Title:       data.Title,
		Body:        data.Body,
		Link:        data.Link,
		Metadata:    data.Metadata,
		CreatedAt:   createdAt,
	})
	if err != nil {
		return err
	}

	if !result.AlreadyProcessed {
		log.Printf("[Consumer] イベントを処理 (id=%s, decision=%s, status=%s)", ev.ID, result.Decision, result.Status)
	}
	return nil
}
