// Package db は通知サービスのデータアクセス層を提供する。
//
// 通知イベントのリードモデル、ユーザーごとの通知設定、
// デバイスごとのプッシュ購読の3テーブルを扱う。
// すべてのクエリはコンテキストを受け取り、呼び出し側のキャンセルに従う。
package db

import (
	"context"
	"database/sql"
)

// DBTX はクエリ実行に必要なデータベース操作のインターフェース。
// *sql.DBと*sql.Txの両方を受け付ける。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries はクエリ実行オブジェクト。
type Queries struct {
	// db はクエリの実行先。
	db DBTX
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}
