// Package migration はSQLiteスキーマのマイグレーションを管理する。
// embedされたSQLファイルを番号順に適用し、適用済みバージョンを
// 管理テーブルに記録する。
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strconv"
	"strings"
)

// script は1つのマイグレーションファイルを表す。
// ファイル名形式: 000001_description.up.sql
type script struct {
	// version はファイル名先頭の連番。適用順序を決める。
	version int
	// name はファイル名のdescription部分。
	name string
	// path はfsys内のファイルパス。
	path string
}

// Run はdir配下のup.sqlファイルを番号順に適用する。
// 適用済みのバージョンはスキップするため、起動のたびに呼んでも安全。
func Run(db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	scripts, err := collect(fsys, dir)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	for _, s := range scripts {
		applied, err := isApplied(db, s.version)
		if err != nil {
			return fmt.Errorf("適用状態の確認に失敗: %w", err)
		}
		if applied {
			continue
		}

		if err := apply(db, fsys, s); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", s.version, s.name, err)
		}
		log.Printf("[Migration] マイグレーション %06d_%s を適用しました", s.version, s.name)
	}

	return nil
}

// isApplied は指定バージョンが適用済みかどうかを返す。
func isApplied(db *sql.DB, version int) (bool, error) {
	var exists int
	err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version,
	).Scan(&exists)
	return exists != 0, err
}

// collect はdir配下のup.sqlファイルをバージョン順に収集する。
// 連番を持たないファイルは対象外として無視する。
func collect(fsys fs.FS, dir string) ([]script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		scripts = append(scripts, script{
			version: version,
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
			path:    dir + "/" + entry.Name(),
		})
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].version < scripts[j].version
	})

	return scripts, nil
}

// apply は1つのマイグレーションをトランザクション内で実行し、
// バージョンを記録する。SQLの実行と記録はまとめてコミットされる。
func apply(db *sql.DB, fsys fs.FS, s script) error {
	content, err := fs.ReadFile(fsys, s.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.name,
	); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}

	return tx.Commit()
}
