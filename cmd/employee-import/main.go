// Command employee-import loads the employee CSV file into the configured sink.
package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/internal/app"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the job at the next record boundary...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")

	fxApp := fx.New(app.Options(ctx, envFilePath, embeddedConfig)...)
	fxApp.Run()
	if err := fxApp.Err(); err != nil {
		logger.Fatalf("Application run failed: %v", err)
	}
}
