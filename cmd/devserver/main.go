package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/neurobridge-sync/internal/app"
	"github.com/yungbote/neurobridge-sync/internal/config"
	"github.com/yungbote/neurobridge-sync/internal/platform/shutdown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("load .env: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-ctx.Done():
		a.Log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			a.Log.Error("server exited", "error", err)
			a.Close()
			os.Exit(1)
		}
	}
}
