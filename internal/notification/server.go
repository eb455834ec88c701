package notification

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	notificationdb "github.com/nao1215/checkin/internal/notification/db"
	"github.com/nao1215/checkin/pkg/hub"
	"github.com/nao1215/checkin/pkg/middleware"
	"github.com/nao1215/checkin/pkg/migration"
	"github.com/nao1215/checkin/pkg/push"
)

// migrationsFS はスキーママイグレーションのSQLファイル。
//
//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はデータアクセス層。
	queries *notificationdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// dispatcher は通知イベントの処理パイプライン。
	dispatcher *Dispatcher
	// consumer はイベントフィードのポーリングプロセス。
	consumer *Consumer
	// hub は受信者単位の再計算シグナルハブ。
	hub *hub.Hub
	// provider はプッシュプロバイダへのクライアント。
	provider push.Provider
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("NOTIFICATION_DB_PATH", "/data/notification.db")
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	eventSourceURL := getEnvOr("EVENTSOURCE_URL", "http://localhost:8084")
	pushProviderURL := getEnvOr("PUSH_PROVIDER_URL", "http://localhost:8090")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	h := hub.New()
	queries := notificationdb.New(sqlDB)
	provider := push.NewHTTPProvider(pushProviderURL)
	dispatcher := NewDispatcher(queries, provider, h)

	s := &Server{
		router:     router,
		port:       port,
		queries:    queries,
		db:         sqlDB,
		dispatcher: dispatcher,
		consumer:   NewConsumer(dispatcher, eventSourceURL),
		hub:        h,
		provider:   provider,
	}
	s.setupRoutes()

	return s, nil
}

// Run はイベントフィードのポーリングとHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.consumer.Start(context.Background())
	defer s.consumer.Stop()
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// getEnvOr は環境変数の値を返す。未設定の場合はフォールバック値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := api.Group("/notifications")
		{
			// 配信済み通知一覧取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 未読件数取得
			notifications.GET("/unread/count", s.handleUnreadCount())
			// 未読件数のライブ更新ストリーム
			notifications.GET("/stream", s.handleStream())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllRead())
		}

		preferences := api.Group("/preferences")
		{
			// 通知設定取得
			preferences.GET("", s.handleGetPreferences())
			// 通知設定更新
			preferences.PUT("", s.handleUpdatePreferences())
		}

		pushGroup := api.Group("/push")
		{
			// プッシュ購読の登録（upsert）
			pushGroup.POST("/subscriptions", s.handleSubscribe())
			// プッシュ購読の解除
			pushGroup.DELETE("/subscriptions", s.handleUnsubscribe())
			// プッシュ購読状態の取得
			pushGroup.GET("/status", s.handlePushStatus())
		}

		// 通知イベント投入（内部API - イベント生成元サービスから呼び出される）
		internal := api.Group("/internal")
		{
			internal.POST("/events", s.handleIngestEvent())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// Type は通知の種類。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Link は通知クリック時の遷移先。
	Link string `json:"link,omitempty"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の発生日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(e notificationdb.NotificationEvent) notificationResponse {
	return notificationResponse{
		ID:          e.ID,
		RecipientID: e.RecipientID,
		Type:        e.Type,
		Title:       e.Title,
		Body:        e.Body,
		Link:        e.Link,
		IsRead:      e.Status == string(StatusRead),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(events []notificationdb.NotificationEvent) []notificationResponse {
	responses := make([]notificationResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, toNotificationResponse(e))
	}
	return responses
}

// handleList は認証済みユーザーの配信済み通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		events, err := s.queries.ListDeliveredByRecipient(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(events))
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		events, err := s.queries.ListUnreadByRecipient(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(events))
	}
}

// handleUnreadCount は認証済みユーザーの未読件数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		count, err := s.queries.CountUnread(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			log.Printf("未読件数取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
// 既に既読の場合も成功として扱う（冪等）。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		if notificationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが必要です"})
			return
		}

		// 通知の存在確認と所有者チェック
		e, err := s.queries.GetEventByID(c.Request.Context(), notificationID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			log.Printf("通知取得エラー: %v", err)
			return
		}

		if e.RecipientID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		marked, err := s.queries.MarkRead(c.Request.Context(), notificationdb.MarkReadParams{
			ID:     notificationID,
			ReadAt: time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		if marked {
			s.hub.Notify(userID)
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllRead は認証済みユーザーの全未読通知を既読にするハンドラ。
// 単一のUPDATE文で実行するため、処理中に届いた新しい通知は対象にならない。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		marked, err := s.queries.MarkAllRead(c.Request.Context(), notificationdb.MarkAllReadParams{
			RecipientID: userID,
			ReadAt:      time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		if marked > 0 {
			s.hub.Notify(userID)
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました", "marked": marked})
	}
}

// preferencesResponse は通知設定のJSONレスポンス構造。
type preferencesResponse struct {
	// NotificationsEnabled は通知全体のマスタースイッチ。
	NotificationsEnabled bool `json:"notifications_enabled"`
	// ChatMode はチャット通知のモード。
	ChatMode string `json:"chat_mode"`
	// TeamActivity はチーム活動カテゴリのトグル。
	TeamActivity bool `json:"team_activity"`
	// TaskUpdates はタスク更新カテゴリのトグル。
	TaskUpdates bool `json:"task_updates"`
	// SystemAlerts はシステム警告カテゴリのトグル。
	SystemAlerts bool `json:"system_alerts"`
	// AccountSecurity はアカウントセキュリティカテゴリのトグル。
	AccountSecurity bool `json:"account_security"`
}

// toPreferencesResponse はドメインの設定をJSONレスポンスに変換する。
func toPreferencesResponse(p Preferences) preferencesResponse {
	return preferencesResponse{
		NotificationsEnabled: p.NotificationsEnabled,
		ChatMode:             string(p.ChatMode),
		TeamActivity:         p.TeamActivity,
		TaskUpdates:          p.TaskUpdates,
		SystemAlerts:         p.SystemAlerts,
		AccountSecurity:      p.AccountSecurity,
	}
}

// handleGetPreferences は認証済みユーザーの通知設定を返すハンドラ。
// 設定行が存在しない場合はデフォルト設定を返す。
func (s *Server) handleGetPreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		row, err := s.queries.GetPreference(c.Request.Context(), userID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, toPreferencesResponse(preferencesFromRow(row)))
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusOK, toPreferencesResponse(DefaultPreferences()))
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知設定の取得に失敗しました"})
			log.Printf("通知設定取得エラー: %v", err)
		}
	}
}

// updatePreferencesRequest は通知設定更新リクエストのJSON構造。
type updatePreferencesRequest struct {
	// NotificationsEnabled は通知全体のマスタースイッチ。
	NotificationsEnabled *bool `json:"notifications_enabled" binding:"required"`
	// ChatMode はチャット通知のモード（all, mentions_only, muted）。
	ChatMode string `json:"chat_mode" binding:"required"`
	// TeamActivity はチーム活動カテゴリのトグル。
	TeamActivity *bool `json:"team_activity" binding:"required"`
	// TaskUpdates はタスク更新カテゴリのトグル。
	TaskUpdates *bool `json:"task_updates" binding:"required"`
	// SystemAlerts はシステム警告カテゴリのトグル。
	SystemAlerts *bool `json:"system_alerts" binding:"required"`
	// AccountSecurity はアカウントセキュリティカテゴリのトグル。
	AccountSecurity *bool `json:"account_security" binding:"required"`
}

// handleUpdatePreferences は認証済みユーザーの通知設定を更新するハンドラ。
func (s *Server) handleUpdatePreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req updatePreferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		mode := ChatMode(req.ChatMode)
		if mode != ChatModeAll && mode != ChatModeMentionsOnly && mode != ChatModeMuted {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("chat_modeが不正です: %s", req.ChatMode)})
			return
		}

		err := s.queries.UpsertPreference(c.Request.Context(), notificationdb.UpsertPreferenceParams{
			UserID:               userID,
			NotificationsEnabled: boolToInt(*req.NotificationsEnabled),
			ChatMode:             req.ChatMode,
			TeamActivity:         boolToInt(*req.TeamActivity),
			TaskUpdates:          boolToInt(*req.TaskUpdates),
			SystemAlerts:         boolToInt(*req.SystemAlerts),
			AccountSecurity:      boolToInt(*req.AccountSecurity),
			UpdatedAt:            time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知設定の更新に失敗しました"})
			log.Printf("通知設定更新エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知設定を更新しました"})
	}
}

// boolToInt はboolをSQLiteのINTEGERに変換する。
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ingestEventRequest は通知イベント投入リクエストのJSON構造。
type ingestEventRequest struct {
	// ID はイベントの一意識別子。省略時はサーバー側で生成する。
	ID string `json:"id"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id" binding:"required"`
	// Type は通知の種類。
	Type string `json:"type" binding:"required"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Link は通知クリック時の遷移先。
	Link string `json:"link"`
	// Metadata は通知に付随する任意のキー/値データ。
	Metadata map[string]string `json:"metadata"`
}

// handleIngestEvent は通知イベントを受け付けて配信判定と配送を行うハンドラ。
// 内部API（イベント生成元サービスまたはイベントフィードの代替経路から呼び出される）。
// 同じIDの再投入は冪等であり、処理済みの結果をそのまま返す。
func (s *Server) handleIngestEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		eventID := req.ID
		if eventID == "" {
			eventID = uuid.New().String()
		}

		result, err := s.dispatcher.RouteAndDispatch(c.Request.Context(), Event{
			ID:          eventID,
			RecipientID: req.RecipientID,
			Type:        Type(req.Type),
			Title:       req.Title,
			Body:        req.Body,
			Link:        req.Link,
			Metadata:    req.Metadata,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知イベントの処理に失敗しました"})
			log.Printf("通知イベント処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
