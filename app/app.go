// Package app boots Ember on a HAL: it wires configuration, logging,
// tracing, the file system, the loader and the console into a kernel,
// installs the bundled programs and starts the init command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/shlex"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"ember/emberos/apps"
	"ember/emberos/console"
	"ember/emberos/fs"
	"ember/emberos/kernel"
	"ember/emberos/loader"
	"ember/emberos/mm"
	"ember/hal"
	"ember/internal/buildinfo"
	"ember/internal/config"
	"ember/internal/idgen"
	"ember/internal/klog"
	"ember/internal/tracing"
)

// ErrShutdown is returned once every process has exited.
var ErrShutdown = errors.New("app: all processes exited")

// System is a booted kernel plus the host plumbing around it.
type System struct {
	h      hal.HAL
	cfg    *config.Config
	log    *slog.Logger
	k      *kernel.Kernel
	fs     *fs.FS
	con    *console.Console
	bootID string

	stop context.CancelFunc
	done chan struct{}
	err  error
}

// Boot builds a kernel from cfg and makes the init command line its first
// process. Nothing runs until Start.
func Boot(ctx context.Context, h hal.HAL, cfg *config.Config) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := klog.ParseLevel(cfg.Log.Level)
	bootID := idgen.New()
	log := klog.New(h.Logger(), level, "boot", bootID)

	if cfg.Trace.File != "" {
		if err := tracing.Init("ember", buildinfo.Short(), bootID, cfg.Trace.File); err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}

	f, err := fs.Mount(ctx, afs.New(), cfg.FS.URL)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", cfg.FS.URL, err)
	}
	if err := apps.Install(ctx, f); err != nil {
		return nil, err
	}
	reg := loader.NewRegistry()
	apps.Register(reg)

	var fb hal.Framebuffer
	if d := h.Display(); d != nil {
		fb = d.Framebuffer()
	}
	con := console.New(h.Logger(), console.Config{
		Prefix:      cfg.Log.ConsolePrefix,
		Framebuffer: fb,
	})

	k, err := kernel.New(kernel.Config{
		NProc:   cfg.Kernel.NProc,
		PhysTop: mm.KernelBase + uint64(cfg.Kernel.MemoryMiB)<<20,
		Logger:  log,
		FS:      f,
		Loader:  reg,
		Console: con,
	})
	if err != nil {
		return nil, err
	}
	installPanicHandler(k, h)

	argv, err := shlex.Split(cfg.Init)
	if err != nil {
		return nil, fmt.Errorf("init command line %q: %w", cfg.Init, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("init command line is empty")
	}
	pid, err := k.Boot(argv[0], argv)
	if err != nil {
		return nil, fmt.Errorf("boot %s: %w", argv[0], err)
	}
	log.Info("ember up",
		"build", buildinfo.String(),
		"init", argv,
		"pid", pid,
		"programs", apps.Names(),
	)

	return &System{
		h:      h,
		cfg:    cfg,
		log:    log,
		k:      k,
		fs:     f,
		con:    con,
		bootID: bootID,
		done:   make(chan struct{}),
	}, nil
}

// Kernel returns the booted kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// FS returns the mounted file system.
func (s *System) FS() *fs.FS { return s.fs }

// Start runs the scheduler next to the tick and input pumps. It returns at
// once; Step and Wait report the outcome.
func (s *System) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.k.Run(gctx) })
	if t := s.h.Time(); t != nil && t.Ticks() != nil {
		g.Go(func() error {
			s.pumpTicks(gctx, t.Ticks())
			return nil
		})
	}
	if in := s.h.Input(); in != nil && in.Keyboard() != nil {
		g.Go(func() error {
			s.pumpKeys(gctx, in.Keyboard().Events())
			return nil
		})
	}
	// Serial reads cannot be interrupted, so the pump stays outside the
	// group and ends with the process.
	if ser := s.h.Serial(); ser != nil {
		go s.pumpSerial(ser)
	}

	go func() {
		s.err = g.Wait()
		s.con.Flush()
		close(s.done)
	}()
}

// Step runs once per host frame: it presents the console and returns a
// non-nil error once the kernel has stopped.
func (s *System) Step() error {
	select {
	case <-s.done:
		return s.result()
	default:
	}
	if s.k.InPanicMode() {
		return nil
	}
	if err := s.con.Present(); err != nil {
		s.log.Warn("console present", "err", err)
	}
	return nil
}

// Wait blocks until the kernel stops.
func (s *System) Wait() error {
	<-s.done
	return s.result()
}

// Stop asks the scheduler to return.
func (s *System) Stop() {
	if s.stop != nil {
		s.stop()
	}
}

// Close flushes traces.
func (s *System) Close(ctx context.Context) error {
	s.Stop()
	if s.cfg.Trace.File == "" {
		return nil
	}
	return tracing.Shutdown(ctx)
}

func (s *System) result() error {
	if errors.Is(s.err, kernel.ErrIdle) {
		return ErrShutdown
	}
	return s.err
}

func (s *System) pumpTicks(ctx context.Context, ch <-chan uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case seq := <-ch:
			s.k.TickTo(seq)
		}
	}
}

func (s *System) pumpKeys(ctx context.Context, ch <-chan hal.KeyEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			s.con.FeedKey(ev)
		}
	}
}

func (s *System) pumpSerial(r hal.Serial) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.con.Feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
