package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcdp "github.com/mafredri/cdp"

	"devpipe/internal/cdp"
	"devpipe/internal/config"
	"devpipe/internal/logger"
	"devpipe/internal/monitor"
	"devpipe/internal/privacy"
	"devpipe/internal/shell"
	"devpipe/internal/sink"
	"devpipe/internal/storage"
	"devpipe/pkg/model"
)

func main() {
	port := flag.Int("port", 0, "CDP port of the target browser instance (required)")
	configPath := flag.String("config", "", "optional yaml config file")
	webrtcPrivacy := flag.Bool("webrtc-privacy", false, "apply the Brave WebRTC IP policy on attach")
	flag.Parse()

	if *port <= 0 {
		fmt.Fprintln(os.Stderr, "usage: devpipe --port <cdp-port> [--config file] [--webrtc-privacy]")
		os.Exit(2)
	}

	if err := run(*port, *configPath, *webrtcPrivacy); err != nil {
		fmt.Fprintf(os.Stderr, "devpipe: %v\n", err)
		os.Exit(1)
	}
}

func run(port int, configPath string, webrtcPrivacy bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:    cfg.Log.Level,
		Writers:  cfg.Log.Writer,
		FilePath: cfg.Log.File,
	})

	jsonl := sink.NewJSONL(cfg.Output.Dir, cfg.Output.MaxSizeMB, log)
	defer jsonl.Close()

	writers := []sink.Writer{jsonl}
	var store *storage.Store
	if cfg.Sqlite.Dsn != "" {
		store, err = storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, log)
		if err != nil {
			return err
		}
		defer store.Close()
		writers = append(writers, store)
	}

	mon := monitor.New(monitor.Options{
		TruncateLen:    cfg.Monitor.TruncateLen,
		BundleInterval: cfg.BundleInterval(),
		BundleMaxItems: cfg.Monitor.BundleMaxItems,
		ClickWindow:    cfg.ClickWindow(),
		ClickLimit:     cfg.Monitor.ClickLimit,
		ClickDebounce:  cfg.ClickDebounce(),
		QueueSize:      cfg.Monitor.EventQueueSize,
	}, sink.NewFanout(writers...), log)
	if store != nil {
		store.SessionFunc = mon.SessionID
	}

	sc := model.SessionConfig{
		DevToolsURL:      fmt.Sprintf("http://127.0.0.1:%d", port),
		ProcessTimeoutMS: cfg.Monitor.ProcessTimeoutMS,
		ReconnectDelayMS: cfg.Monitor.ReconnectDelayMS,
	}
	mgr := cdp.New(sc, mon, log)
	if webrtcPrivacy {
		mgr.OnAttach(func(ctx context.Context, c *mcdp.Client) {
			if err := privacy.Apply(ctx, c, log); err != nil {
				log.Warn("webrtc privacy not applied", "error", err.Error())
			}
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	version, err := mgr.Preflight(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Connecting to browser on CDP port %d...\n", port)
	fmt.Printf("Successfully connected to: %s\n", version.Browser)

	go mon.Run(ctx)
	go func() {
		if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
			log.Err(err, "transport terminated")
			cancel()
		}
	}()

	err = shell.New(mon, jsonl, mgr, log).Run(ctx, os.Stdin, os.Stdout)
	cancel()
	fmt.Println("Disconnecting from browser...")
	return err
}
