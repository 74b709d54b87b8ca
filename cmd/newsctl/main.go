package main

import (
	"log/slog"
	"os"

	"github.com/NewsDiscover/cmd/newsctl/cmd"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	cmd.Execute()
}
