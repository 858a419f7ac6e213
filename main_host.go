//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"ember/app"
	"ember/hal"
	"ember/internal/config"
)

func main() {
	var hcfg hal.HeadlessConfig
	var configURL, traceFile, initLine string
	flag.StringVar(&configURL, "config", "", "Boot config YAML (path or afs URL).")
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run until init exits).")
	flag.StringVar(&traceFile, "trace", "", "Write one span per system call to this file.")
	flag.StringVar(&initLine, "init", "", "Init command line, e.g. \"init hello forktest\".")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(ctx, configURL)
	if err != nil {
		fatal(err)
	}
	if traceFile != "" {
		cfg.Trace.File = traceFile
	}
	if initLine != "" {
		cfg.Init = initLine
	}

	var sys *app.System
	newApp := func(h hal.HAL) (func() error, error) {
		s, err := app.Boot(ctx, h, cfg)
		if err != nil {
			return nil, err
		}
		sys = s
		s.Start(ctx)
		return s.Step, nil
	}
	opts := hal.Options{Width: cfg.Display.Width, Height: cfg.Display.Height}

	if hcfg.Enabled {
		err = hal.RunHeadless(ctx, opts, newApp, hcfg)
	} else {
		err = hal.RunWindow(opts, newApp)
	}

	if sys != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := sys.Close(closeCtx); cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
		}
	}
	switch {
	case err == nil, errors.Is(err, app.ErrShutdown), errors.Is(err, context.Canceled):
		return
	}
	fatal(err)
}

func loadConfig(ctx context.Context, URL string) (*config.Config, error) {
	if URL == "" {
		return config.Default(), nil
	}
	return config.Load(ctx, afs.New(), url.Normalize(URL, file.Scheme))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
