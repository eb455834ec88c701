// Package hub は受信者単位の変更シグナルを配信するインプロセスのハブを提供する。
//
// 通知の挿入・更新が発生したことだけを伝えるシグナルであり、ペイロードは運ばない。
// 購読側はシグナルを受けてデータベースを再クエリする。シグナルの取りこぼしや
// 順序の入れ替わりがあっても、再クエリによって最新状態に収束する。
package hub

import "sync"

// Hub は受信者ごとの購読者を管理するインプロセスのシグナルハブ。
// 単一インスタンス構成を前提とする。
type Hub struct {
	// mu はsubscribersへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// subscribers は受信者ID → 購読チャネル集合のマップ。
	subscribers map[string]map[chan struct{}]struct{}
}

// New は新しいハブを生成する。
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe は指定した受信者のシグナル購読を開始する。
// 戻り値のチャネルと、切断時に必ず呼び出す購読解除関数を返す。
func (h *Hub) Subscribe(recipientID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subscribers[recipientID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subscribers[recipientID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subscribers[recipientID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subscribers, recipientID)
			}
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}

// Notify は指定した受信者の全購読者にシグナルを送信する。
// チャネルのバッファが埋まっている場合は送信をスキップする。
// 購読側は1つのシグナルで再クエリするため、シグナルの合流は問題にならない。
func (h *Hub) Notify(recipientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[recipientID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount は指定した受信者の現在の購読者数を返す。
func (h *Hub) SubscriberCount(recipientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[recipientID])
}
