package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"m7s.live/hds"
	"m7s.live/hds/pkg"
)

func main() {
	cl := hds.NewCommandLine("mp4frag", true)
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
	start := time.Now()
	err = hds.NewPackager(conf, logger).RunBatch(ctx, cl.Sources)
	stop()
	if err != nil {
		logger.Error("mp4frag failed", "err", err)
		os.Exit(1)
	}
	logger.Info("done", "sources", len(cl.Sources), "elapsed", time.Since(start))
}
