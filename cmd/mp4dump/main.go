package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"m7s.live/hds"
	"m7s.live/hds/pkg"
)

func main() {
	cl := hds.NewCommandLine("mp4dump", false)
	conf, err := cl.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := pkg.NewLogger(os.Stderr, conf.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = hds.NewPackager(conf, logger).Run(ctx, cl.Sources[0])
	stop()
	if err != nil {
		logger.Error("mp4dump failed", "src", cl.Sources[0], "err", err)
		os.Exit(1)
	}
}
