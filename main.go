package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-colorable"

	"github.com/tmshv/podmirror/config"
	"github.com/tmshv/podmirror/feed"
	"github.com/tmshv/podmirror/fetch"
	"github.com/tmshv/podmirror/logger"
	"github.com/tmshv/podmirror/mirror"
	"github.com/tmshv/podmirror/store"
)

const (
	exitSuccess     = 0
	exitFatal       = 1
	exitInvalidArgs = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "podmirror: load .env: %v\n", err)
		return exitInvalidArgs
	}

	cli, err := config.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podmirror: %v\n", err)
		return exitInvalidArgs
	}

	log := logger.New(cli.Verbose, cli.JSONLogs)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal store.Store
	if cli.Journal != "" {
		s, err := store.NewSqliteStore(cli.Journal, log.Named("store"))
		if err != nil {
			log.Errorw("Failed to open journal", "path", cli.Journal, "error", err)
			return exitFatal
		}
		defer s.Close()
		journal = s
	}

	client := fetch.NewHTTPClient(fetch.HTTPOptions{
		ConnectTimeout:      cli.ConnectTimeout,
		MaxRedirects:        cli.MaxRedirects,
		MaxIdleConnsPerHost: cli.Concurrency,
	})
	source := feed.NewClient(nil, cli.ConnectTimeout+cli.IdleTimeout, log.Named("feed"))

	m := mirror.New(mirror.Options{
		FeedURL:     cli.FeedURL,
		TargetDir:   cli.TargetDir,
		Concurrency: cli.Concurrency,
		IdleTimeout: cli.IdleTimeout,
		HTTPClient:  client,
		ShowNotes:   cli.ShowNotes,
		Output:      colorable.NewColorableStdout(),
	}, source, journal, log)

	result, err := m.Run(ctx)
	if err != nil {
		log.Errorw("Mirror failed", "error", err)
		return exitFatal
	}
	if ctx.Err() != nil {
		log.Warnw("Interrupted", "failed", result.Downloads.Failed)
	}
	return exitSuccess
}
