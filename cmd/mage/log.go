package main

import (
	"log/slog"
	"os"
	"strconv"
)

var (
	theLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
)

func slogLevel() slog.Level {
	if ok, _ := strconv.ParseBool(os.Getenv("DEBUG")); ok {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
