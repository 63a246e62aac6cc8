// Command laptrack は水泳トレーニング記録APIのエントリーポイント。
//
//	laptrack [serve]                 APIサーバーを起動する
//	laptrack migrate [up|down N|version]
//	laptrack reconcile               IdPとローカルユーザーの差分をJSONで出力する
//	laptrack healthcheck             /health を叩いて終了コードで結果を返す
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/laptrack/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "laptrack: %v\n", err)
		os.Exit(1)
	}
}
