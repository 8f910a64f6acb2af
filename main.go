package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var code int
	runOnMainThread(func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		code = exitCode(newRootCommand().ExecuteContext(ctx))
	})
	os.Exit(code)
}
