package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/kernel"
	"ember/hal"
	"ember/internal/config"
)

func testConfig(t *testing.T, init string) *config.Config {
	cfg := config.Default()
	cfg.FS.URL = "mem://localhost/app/" + t.Name()
	cfg.Init = init
	return cfg
}

func testHAL(log io.Writer) hal.HAL {
	return hal.New(hal.Options{Width: 64, Height: 64, Log: log, Out: io.Discard})
}

func TestBootRunsInitToCompletion(t *testing.T) {
	var log bytes.Buffer
	h := testHAL(&log)
	s, err := Boot(context.Background(), h, testConfig(t, "init hello forktest"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Start(ctx)
	require.NoError(t, s.Step())

	assert.ErrorIs(t, s.Wait(), ErrShutdown)
	assert.ErrorIs(t, s.Step(), ErrShutdown)
	require.NoError(t, s.Close(ctx))

	out := log.String()
	assert.Contains(t, out, `msg="ember up"`)
	assert.Contains(t, out, "| hello from pid 2")
	assert.Contains(t, out, "| forktest: 4 children, exit code sum 10")
	assert.Contains(t, out, "Ember: all processes exited")
	assert.NotContains(t, out, "Ember Panic")
}

func TestBootRejectsBadInit(t *testing.T) {
	for _, init := range []string{"nosuchprogram", "init 'unterminated", "   "} {
		_, err := Boot(context.Background(), testHAL(io.Discard), testConfig(t, init))
		assert.Error(t, err, init)
	}
}

func TestStopCancelsRun(t *testing.T) {
	// stride keeps yielding until its clock advances, which never happens
	// here since nothing steps the host timer.
	s, err := Boot(context.Background(), testHAL(io.Discard), testConfig(t, "stride"))
	require.NoError(t, err)

	s.Start(context.Background())
	s.Stop()
	err = s.Wait()
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestPanicScreen(t *testing.T) {
	var log bytes.Buffer
	h := testHAL(&log)
	k, err := kernel.New(kernel.Config{})
	require.NoError(t, err)
	installPanicHandler(k, h)

	// With no process to run the kernel halts at once; that is not a panic.
	require.ErrorIs(t, k.Run(context.Background()), kernel.ErrIdle)
	assert.Equal(t, "Ember: all processes exited\n", log.String())

	fb := hal.NewFramebuffer(64, 64)
	drawPanic(fb, panicLines(kernel.PanicInfo{PID: 3, Value: "boom"}))
	var black int
	buf := fb.Buffer()
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			black++
		}
	}
	assert.Positive(t, black)
}

func TestPanicLines(t *testing.T) {
	lines := panicLines(kernel.PanicInfo{PID: 2, Value: "bad", Stack: []byte("a\n\nb\n")})
	assert.Equal(t, []string{"Ember Panic:", "pid: 2", "panic: bad", "stack:", "a", "b"}, lines)

	lines = panicLines(kernel.PanicInfo{PID: -1, Value: "bad"})
	assert.Equal(t, "stack: unavailable", lines[len(lines)-1])
}

func TestTakeRunes(t *testing.T) {
	p, r := takeRunes("héllo", 2)
	assert.Equal(t, "hé", p)
	assert.Equal(t, "llo", r)

	p, r = takeRunes("hi", 5)
	assert.Equal(t, "hi", p)
	assert.Empty(t, r)
	assert.False(t, strings.Contains(p, "\n"))
}
