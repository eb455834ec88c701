// 通知サービスのエントリポイント。
// イベントフィードから通知イベントを取り込み、設定にもとづく配信判定と
// プッシュ配送、未読管理を行う。
package main

import (
	"log"
	"os"

	"github.com/nao1215/checkin/internal/notification"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	server, err := notification.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
