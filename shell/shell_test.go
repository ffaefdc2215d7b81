package shell

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/domino14/primesearch/config"
)

func TestExtractFields(t *testing.T) {
	is := is.New(t)
	type testdata struct {
		line   string
		expCmd *shellcmd
		expErr error
	}
	cases := []testdata{
		{"", nil, errNoData},
		{"   ", nil, errNoData},
		{"start -workers 4",
			&shellcmd{"start", nil, CmdOptions{"workers": {"4"}}},
			nil},
		{"primes 1000",
			&shellcmd{"primes", []string{"1000"}, CmdOptions{}},
			nil},
		{"primes 1000 -limit 10 ",
			&shellcmd{"primes",
				[]string{"1000"},
				CmdOptions{"limit": {"10"}}},
			nil,
		},
		{"help 'start'",
			&shellcmd{"help", []string{"start"}, CmdOptions{}},
			nil},
		{"start -workers",
			nil, errWrongOptionSyntax},
	}
	for _, t := range cases {
		cmd, err := extractFields(t.line)
		is.Equal(cmd, t.expCmd)
		is.Equal(err, t.expErr)
	}
}

func TestCmdOptions(t *testing.T) {
	is := is.New(t)
	opts := CmdOptions{"workers": {"3"}, "name": {"a", "b"}}
	n, err := opts.Int("workers")
	is.NoErr(err)
	is.Equal(n, 3)
	_, err = opts.Int("missing")
	is.True(err != nil)
	n, err = opts.IntDefault("missing", 7)
	is.NoErr(err)
	is.Equal(n, 7)
	is.Equal(opts.String("name"), "a")
	is.Equal(opts.String("missing"), "")
}

func newTestShell(t *testing.T) (*ShellController, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigWorkers, 1)
	out := &bytes.Buffer{}
	sc, err := newController(cfg, out)
	require.NoError(t, err)
	t.Cleanup(sc.Cleanup)
	return sc, out
}

func TestHelp(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)

	assert.True(t, sc.Execute(sig, "help"))
	assert.Contains(t, out.String(), "start [-workers N]")
	out.Reset()

	sc.Execute(sig, "help primes")
	assert.Contains(t, out.String(), "primes <max> [-limit N]")
	out.Reset()

	sc.Execute(sig, "help nothing")
	assert.Contains(t, out.String(), "There is no help text for the topic nothing")
}

func TestStatusWhenIdle(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)
	sc.Execute(sig, "status")

	var v map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, false, v["running"])
	assert.Equal(t, 1, v["workers"])
	assert.Equal(t, 0, v["total_primes_found"])
	assert.Equal(t, 1, v["highest_number_checked"])
	assert.Equal(t, 15, v["cached_primes"])
}

func TestStartStopCycle(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)

	sc.Execute(sig, "workers")
	assert.Contains(t, out.String(), "no workers")
	out.Reset()

	sc.Execute(sig, "start -workers 2")
	assert.Contains(t, out.String(), "search started with 2 workers from 2")
	assert.True(t, sc.Coordinator().IsRunning())
	out.Reset()

	sc.Execute(sig, "start")
	assert.Contains(t, out.String(), "Error: search is already running")
	out.Reset()

	sc.Execute(sig, "reset")
	assert.Contains(t, out.String(), "Error: search is running")
	out.Reset()

	assert.Eventually(t, func() bool {
		return len(sc.Coordinator().PrimeCache().PrimesUpTo(100)) == 25
	}, 10*time.Second, 5*time.Millisecond)

	sc.Execute(sig, "primes 100 -limit 5")
	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "25 stored primes <= 100 (showing the largest 5)", lines[0])
	assert.Equal(t, "73 79 83 89 97", lines[1])
	out.Reset()

	sc.Execute(sig, "workers")
	assert.Contains(t, out.String(), "Status")
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	out.Reset()

	sc.Execute(sig, "stop")
	assert.False(t, sc.Coordinator().IsRunning())
	var v map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, false, v["running"])
	assert.NotEmpty(t, v["run_id"])
	out.Reset()

	sc.Execute(sig, "reset")
	assert.Contains(t, out.String(), "next start begins at 2")
	assert.Equal(t, uint64(0), sc.Coordinator().Statistics().TotalPrimesFound)
}

func TestWorkersHistogram(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)

	sc.Execute(sig, "start -workers 2")
	assert.Eventually(t, func() bool {
		states := sc.Coordinator().WorkerStates()
		return states[0].BatchesCompleted >= 2 && states[1].BatchesCompleted >= 1
	}, 10*time.Second, 5*time.Millisecond)
	sc.Execute(sig, "stop")
	out.Reset()

	sc.Execute(sig, "workers")
	assert.Contains(t, out.String(), "Stdev ms")
	out.Reset()

	n0 := len(sc.Coordinator().RecentBatchTimes(0))
	n1 := len(sc.Coordinator().RecentBatchTimes(1))
	sc.Execute(sig, "workers -hist 0")
	assert.Contains(t, out.String(),
		fmt.Sprintf("batch compute time (ms), worker 0, last %d batches", n0))
	assert.Greater(t, strings.Count(out.String(), "\n"), 0)
	out.Reset()

	sc.Execute(sig, "workers -hist all")
	assert.Contains(t, out.String(),
		fmt.Sprintf("batch compute time (ms), all workers, last %d batches", n0+n1))
	out.Reset()

	sc.Execute(sig, "workers -hist 2")
	assert.Contains(t, out.String(), "Error: no worker 2")
	out.Reset()

	sc.Execute(sig, "workers -hist fast")
	assert.Contains(t, out.String(), "Error: -hist takes a worker id or all")
	out.Reset()

	sc.Execute(sig, "workers -hist")
	assert.Contains(t, out.String(), errWrongOptionSyntax.Error())
}

func TestWorkersHistogramBeforeAnyBatch(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)

	// Start and stop at once; a batch may or may not have finished.
	sc.Execute(sig, "start")
	sc.Execute(sig, "stop")
	out.Reset()
	sc.Execute(sig, "workers -hist 0")
	if len(sc.Coordinator().RecentBatchTimes(0)) == 0 {
		assert.Contains(t, out.String(), "no batch timings yet")
	} else {
		assert.Contains(t, out.String(), "batch compute time (ms), worker 0")
	}
}

func TestBadCommands(t *testing.T) {
	sc, out := newTestShell(t)
	sig := make(chan os.Signal, 1)

	sc.Execute(sig, "frobnicate")
	assert.Contains(t, out.String(), `Error: command "frobnicate" not recognized`)
	out.Reset()

	sc.Execute(sig, "start -workers")
	assert.Contains(t, out.String(), errWrongOptionSyntax.Error())
	out.Reset()

	sc.Execute(sig, "start -workers 0")
	assert.Contains(t, out.String(), "invalid configuration")
	assert.False(t, sc.Coordinator().IsRunning())
	out.Reset()

	sc.Execute(sig, "primes")
	assert.Contains(t, out.String(), "usage: primes")
	out.Reset()

	sc.Execute(sig, "primes 5000000")
	assert.Contains(t, out.String(), "only primes up to 2000000 are stored")
	out.Reset()

	sc.Execute(sig, "stop")
	assert.Contains(t, out.String(), "no search is running")
}

func TestExit(t *testing.T) {
	sc, _ := newTestShell(t)
	sig := make(chan os.Signal, 1)
	assert.False(t, sc.Execute(sig, "exit"))
	select {
	case <-sig:
	default:
		t.Fatal("expected a quit signal")
	}
}

func TestCompleter(t *testing.T) {
	is := is.New(t)
	c := NewShellCompleter()

	matches, n := c.Do([]rune("sta"), 3)
	is.Equal(n, 3)
	is.Equal(len(matches), 2) // start, status

	matches, n = c.Do([]rune("start -w"), 8)
	is.Equal(n, 2)
	is.Equal(matches, [][]rune{[]rune("orkers")})

	matches, n = c.Do([]rune("workers -h"), 10)
	is.Equal(n, 2)
	is.Equal(matches, [][]rune{[]rune("ist")})

	matches, _ = c.Do([]rune("help pr"), 7)
	is.Equal(matches, [][]rune{[]rune("imes")})
}
