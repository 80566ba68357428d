package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/infinitech/infinitask/pkg/sentinel"
)

// runSentinel supervises "infinitask run" with the same env file.
func runSentinel(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	s, err := sentinel.New(sentinel.Config{
		Args: []string{"--env-file", *envFile, "run"},
	})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
