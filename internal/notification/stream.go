package notification

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/checkin/pkg/middleware"
)

// upgrader はWebSocketへのプロトコルアップグレード設定。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// unreadCountMessage は未読件数のWebSocketメッセージ。
type unreadCountMessage struct {
	// UnreadCount は現在の未読件数。
	UnreadCount int64 `json:"unread_count"`
}

// handleStream は未読件数のライブ更新をWebSocketで配信するハンドラ。
// 接続時に現在の未読件数を送信し、以降は再計算シグナルを受けるたびに
// 件数を問い合わせ直して送信する。シグナル自体はペイロードを持たない。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocketアップグレードエラー: %v", err)
			return
		}
		defer conn.Close()

		signals, unsubscribe := s.hub.Subscribe(userID)
		defer unsubscribe()

		// クライアント側の切断を検知するための読み取りループ
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		writeCount := func() error {
			count, err := s.queries.CountUnread(c.Request.Context(), userID)
			if err != nil {
				return err
			}
			return conn.WriteJSON(unreadCountMessage{UnreadCount: count})
		}

		if err := writeCount(); err != nil {
			log.Printf("未読件数の送信に失敗: %v", err)
			return
		}

		for {
			select {
			case <-done:
				return
			case <-c.Request.Context().Done():
				return
			case <-signals:
				if err := writeCount(); err != nil {
					log.Printf("未読件数の送信に失敗: %v", err)
					return
				}
			}
		}
	}
}
