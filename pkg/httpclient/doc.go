// Package httpclient は外部コラボレータとのHTTP通信を行うクライアントを提供する。
//
// 通知サービスがイベントフィードをポーリングする際や、
// プッシュプロバイダの購読解除APIを呼び出す際に使用する。
// 外部サービスとの通信パターンを統一する。
package httpclient
