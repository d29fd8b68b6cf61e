package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/oda/bptreedb"
	"github.com/oda/bptreedb/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bptreedb:", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("path", "bptreedb", "path prefix for the store's .dat/.bin files")
	keyWidth := flag.Int("key-width", 68, "fixed key width in bytes")
	fanout := flag.Int("fanout", 50, "maximum entries per node")
	height := flag.Int("height", 6, "expected tree height, used to size the page cache")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	zcfg := zap.NewDevelopmentConfig()
	if !*verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zlog, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zlog.Sync()

	tree, err := bptreedb.Open(*path,
		bptreedb.WithKeyWidth(*keyWidth),
		bptreedb.WithFanout(*fanout),
		bptreedb.WithExpectedHeight(*height),
		bptreedb.WithLogger(logging.NewZap(zlog)),
	)
	if err != nil {
		return fmt.Errorf("open tree at %s: %w", *path, err)
	}
	defer tree.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := &Driver{Tree: tree, K: *keyWidth}
	return d.Run(ctx, os.Stdin, os.Stdout)
}
