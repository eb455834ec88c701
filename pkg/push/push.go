// Package push はOSレベルのプッシュ通知を配送するプロバイダへのクライアントを提供する。
//
// プロバイダは (endpoint, public_key, auth_secret, payload) を受け取って
// デバイスへの配送を行う外部コラボレータである。配送結果が「購読が失効している」
// ことを示す場合、呼び出し側は該当する購読行を削除する（自己修復レジストリ）。
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nao1215/checkin/pkg/httpclient"
)

// ErrSubscriptionGone はプロバイダが購読の失効を報告したことを表す。
// このエラーを受けた呼び出し側は購読行を削除すべきである。
var ErrSubscriptionGone = errors.New("プッシュ購読が失効している")

// Subscription はプッシュ配送先のデバイス購読情報。
type Subscription struct {
	// Endpoint はプロバイダが発行したデバイス固有の配送先URL。
	Endpoint string `json:"endpoint"`
	// PublicKey はペイロード暗号化用の公開鍵（p256dh）。
	PublicKey string `json:"public_key"`
	// AuthSecret は認証用シークレット。
	AuthSecret string `json:"auth_secret"`
}

// Payload はプッシュ通知の表示内容。
type Payload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Link は通知クリック時の遷移先（省略可能）。
	Link string `json:"link,omitempty"`
	// Tag は同種通知の視覚的なグルーピング用タグ（省略可能）。
	Tag string `json:"tag,omitempty"`
}

// Provider はプッシュプロバイダへの操作を表すインターフェース。
type Provider interface {
	// Send は1つの購読エンドポイントにプッシュ通知を送信する。
	// 購読が失効している場合はErrSubscriptionGoneを返す。
	Send(ctx context.Context, sub Subscription, payload Payload) error
	// Revoke はプロバイダ側の購読を解除する。
	Revoke(ctx context.Context, endpoint string) error
}

// HTTPProvider はHTTP APIを持つプッシュプロバイダへのクライアント。
type HTTPProvider struct {
	// httpClient はSend用のHTTPクライアント。ステータスコードの判別が必要なため
	// 汎用のhttpclientパッケージではなく直接net/httpを使用する。
	httpClient *http.Client
	// revokeClient はRevoke用の汎用JSONクライアント。
	revokeClient *httpclient.Client
	// baseURL はプロバイダのベースURL。
	baseURL string
}

// NewHTTPProvider は新しいプッシュプロバイダクライアントを生成する。
// baseURLにはプロバイダのベースURL（例: "http://push-provider:8090"）を指定する。
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		revokeClient: httpclient.New(baseURL),
		baseURL:      baseURL,
	}
}

// sendRequest はプロバイダの送信APIへのリクエストボディ。
type sendRequest struct {
	// Endpoint はデバイス固有の配送先URL。
	Endpoint string `json:"endpoint"`
	// PublicKey はペイロード暗号化用の公開鍵。
	PublicKey string `json:"public_key"`
	// AuthSecret は認証用シークレット。
	AuthSecret string `json:"auth_secret"`
	// Payload は通知の表示内容。
	Payload Payload `json:"payload"`
}

// Send は1つの購読エンドポイントにプッシュ通知を送信する。
// プロバイダが404または410を返した場合はErrSubscriptionGoneを返す。
func (p *HTTPProvider) Send(ctx context.Context, sub Subscription, payload Payload) error {
	body, err := json.Marshal(sendRequest{
		Endpoint:   sub.Endpoint,
		PublicKey:  sub.PublicKey,
		AuthSecret: sub.AuthSecret,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("送信リクエストのシリアライズに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("プッシュ送信リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("endpoint=%s: %w", sub.Endpoint, ErrSubscriptionGone)
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("プッシュ送信に失敗: status=%d, body=%s", resp.StatusCode, string(respBody))
	}
}

// Revoke はプロバイダ側の購読を解除する。
// 解除対象が存在しない場合もプロバイダは成功を返す前提とする。
func (p *HTTPProvider) Revoke(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	if err := p.revokeClient.DeleteJSON(ctx, "/api/v1/subscriptions", body); err != nil {
		return fmt.Errorf("プロバイダ側の購読解除に失敗: %w", err)
	}
	return nil
}
