package notification

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	notificationdb "github.com/nao1215/checkin/internal/notification/db"
	"github.com/nao1215/checkin/pkg/middleware"
)

// subscribeRequest はプッシュ購読登録リクエストのJSON構造。
type subscribeRequest struct {
	// Endpoint はデバイス固有の配送先URL。
	Endpoint string `json:"endpoint" binding:"required"`
	// PublicKey はペイロード暗号化用の公開鍵。
	PublicKey string `json:"public_key" binding:"required"`
	// AuthSecret は認証用シークレット。
	AuthSecret string `json:"auth_secret" binding:"required"`
}

// handleSubscribe はプッシュ購読を登録するハンドラ。
// 同一の(ユーザー, エンドポイント)での再登録は行を複製せず鍵を上書きする。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req subscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		err := s.queries.UpsertPushSubscription(c.Request.Context(), notificationdb.UpsertPushSubscriptionParams{
			UserID:     userID,
			Endpoint:   req.Endpoint,
			PublicKey:  req.PublicKey,
			AuthSecret: req.AuthSecret,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プッシュ購読の登録に失敗しました"})
			log.Printf("プッシュ購読登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "プッシュ購読を登録しました", "endpoint": req.Endpoint})
	}
}

// unsubscribeRequest はプッシュ購読解除リクエストのJSON構造。
type unsubscribeRequest struct {
	// Endpoint は解除対象の配送先URL。
	Endpoint string `json:"endpoint" binding:"required"`
}

// handleUnsubscribe はプッシュ購読を解除するハンドラ。
// プロバイダ側の解除はベストエフォートで行い、失敗してもローカルの購読行は必ず削除する。
func (s *Server) handleUnsubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req unsubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.provider.Revoke(c.Request.Context(), req.Endpoint); err != nil {
			log.Printf("プッシュプロバイダ側の購読解除に失敗（ローカル削除は続行）: %v", err)
		}

		deleted, err := s.queries.DeletePushSubscription(c.Request.Context(), notificationdb.DeletePushSubscriptionParams{
			UserID:   userID,
			Endpoint: req.Endpoint,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プッシュ購読の解除に失敗しました"})
			log.Printf("プッシュ購読削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "プッシュ購読を解除しました", "deleted": deleted})
	}
}

// handlePushStatus は指定エンドポイントの購読状態を返すハンドラ。
// 状態の参照のみで、購読行を変更することはない。
func (s *Server) handlePushStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		endpoint := c.Query("endpoint")
		if endpoint == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endpointクエリパラメータが必要です"})
			return
		}

		_, err := s.queries.GetPushSubscription(c.Request.Context(), notificationdb.GetPushSubscriptionParams{
			UserID:   userID,
			Endpoint: endpoint,
		})
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"subscribed": true})
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusOK, gin.H{"subscribed": false})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読状態の取得に失敗しました"})
			log.Printf("購読状態取得エラー: %v", err)
		}
	}
}
