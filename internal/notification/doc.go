// Package notification は通知サービスの内部実装を提供する。
//
// イベントフィードから通知イベントを取り込み、受信者ごとの通知設定に
// もとづいて配信（deliver）か抑制（suppress）を判定する。配信された通知は
// アプリ内通知として保存され、登録済みデバイスへのプッシュ配送も行う。
// 同じイベントが複数回届いても、受信者への配信は一度だけ行われる。
//
// 主な機能:
//   - イベントフィードのポーリングと配信判定（Consumer / Dispatcher）
//   - 受信者ごとの通知設定の管理（チャットモード、カテゴリトグル）
//   - アプリ内通知の一覧取得と既読管理
//   - プッシュ購読の登録・解除と失効購読の自動削除
//   - 未読件数のライブ更新（WebSocket）
package notification
