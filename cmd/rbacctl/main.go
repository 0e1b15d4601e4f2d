package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/storeadmin/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cli.NewEnv()
	if err := cli.NewRootCommand().Execute(ctx, env, os.Args[1:]); err != nil {
		env.Log.WithError(err).Error("rbacctl failed")
		stop()
		os.Exit(1)
	}
}
