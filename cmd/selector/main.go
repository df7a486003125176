package main

import (
	"os"

	"github.com/hzhao/stock-selector/cmd/selector/commands"
)

// main is the entry point for the selector CLI
// ⭐ 统一 CLI 入口: go run ./cmd/selector [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
