// smolhub-server はモデルカタログのホスティング基盤（認証・行ストア・Blobストア）を提供する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/smolhub/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
