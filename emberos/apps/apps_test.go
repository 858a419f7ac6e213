package apps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"ember/emberos/console"
	"ember/emberos/fs"
	"ember/emberos/kernel"
	"ember/emberos/loader"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type machine struct {
	k   *kernel.Kernel
	fs  *fs.FS
	out *lineLog
}

// boot installs every program and starts argv as the first process.
func boot(t *testing.T, cmdline string) *machine {
	t.Helper()
	ctx := context.Background()
	f, err := fs.Mount(ctx, afs.New(), "mem://localhost/apps/"+t.Name())
	require.NoError(t, err)
	require.NoError(t, Install(ctx, f))

	reg := loader.NewRegistry()
	Register(reg)
	out := &lineLog{}
	k, err := kernel.New(kernel.Config{
		FS:      f,
		Loader:  reg,
		Console: console.New(out, console.Config{}),
	})
	require.NoError(t, err)

	argv := strings.Fields(cmdline)
	_, err = k.Boot(argv[0], argv)
	require.NoError(t, err)
	return &machine{k: k, fs: f, out: out}
}

// run drives the kernel, with a 1 kHz clock, until every process exited.
func (m *machine) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		tick := time.NewTicker(time.Millisecond)
		defer tick.Stop()
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				seq++
				m.k.TickTo(seq)
			}
		}
	}()

	err := m.k.Run(ctx)
	require.ErrorIs(t, err, kernel.ErrIdle)
}

func TestHello(t *testing.T) {
	m := boot(t, "hello")
	m.run(t)
	assert.Equal(t, []string{"hello from pid 1"}, m.out.all())
}

func TestInitSpawnsAndReaps(t *testing.T) {
	m := boot(t, "init hello sbrktest")
	m.run(t)

	out := m.out.all()
	require.NotEmpty(t, out)
	assert.Equal(t, "init: started", out[0])
	assert.Equal(t, "init: no children left", out[len(out)-1])
	assert.Contains(t, out, "hello from pid 2")
	assert.Contains(t, out, "sbrktest: ok")
	assert.Contains(t, out, "init: pid 2 exited with code 0")
	assert.Contains(t, out, "init: pid 3 exited with code 0")
}

func TestInitReportsSpawnFailure(t *testing.T) {
	m := boot(t, "init nosuchprogram")
	m.run(t)
	assert.Equal(t, []string{"init: started", "init: spawn failed", "init: no children left"}, m.out.all())
}

func TestForktest(t *testing.T) {
	m := boot(t, "forktest 3")
	m.run(t)

	out := m.out.all()
	assert.Contains(t, out, "forktest: 3 children, exit code sum 6")
	for i := 1; i <= 3; i++ {
		assert.Contains(t, out, fmt.Sprintf("forktest: child %d is pid %d", i, i+1))
	}
	assert.Equal(t, m.k.Frames().Frames(), m.k.Frames().FreeFrames())
}

func TestForktestFailsWhenTableFull(t *testing.T) {
	m := boot(t, "forktest 40")
	m.run(t)
	assert.Contains(t, m.out.all(), "forktest: failed")
}

func TestExecReplacesImage(t *testing.T) {
	m := boot(t, "exectest")
	m.run(t)
	assert.Equal(t, []string{"exec works"}, m.out.all())
}

func TestMemoryPrograms(t *testing.T) {
	m := boot(t, "init sbrktest mmaptest")
	m.run(t)

	out := m.out.all()
	assert.Contains(t, out, "sbrktest: ok")
	assert.Contains(t, out, "mmaptest: ok")
	assert.Equal(t, m.k.Frames().Frames(), m.k.Frames().FreeFrames())
}

func TestFiletest(t *testing.T) {
	m := boot(t, "filetest")
	m.run(t)

	assert.Equal(t, []string{"filetest: ok"}, m.out.all())
	assert.NotContains(t, m.fs.List(), fileName)
	assert.NotContains(t, m.fs.List(), fileAlias)
}

func TestStride(t *testing.T) {
	m := boot(t, "stride 30")
	m.run(t)

	var reports int
	for _, l := range m.out.all() {
		if strings.HasPrefix(l, "stride: priority ") {
			reports++
		}
	}
	assert.Equal(t, 4, reports)
	assert.Contains(t, m.out.all(), "stride: done")
}

func TestInstallAndNames(t *testing.T) {
	ctx := context.Background()
	f, err := fs.Mount(ctx, afs.New(), "mem://localhost/apps/"+t.Name())
	require.NoError(t, err)
	require.NoError(t, Install(ctx, f))

	reg := loader.NewRegistry()
	Register(reg)
	for _, name := range Names() {
		img, err := f.ReadFile(ctx, name)
		require.NoError(t, err, name)
		_, err = reg.Parse(img)
		assert.NoError(t, err, name)
	}
	assert.Equal(t, "echo", Names()[0])
}
