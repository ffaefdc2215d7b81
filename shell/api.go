package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"gopkg.in/yaml.v3"

	"github.com/domino14/primesearch/coordinator"
)

const (
	defaultPrimesShown = 200
	histBins           = 10
	histWidth          = 40
)

type Response struct {
	message string
}

type CmdOptions map[string][]string

func (c CmdOptions) String(key string) string {
	v := c[key]
	if len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c CmdOptions) Int(key string) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return 0, errors.New(key + " not found in options")
	}
	return strconv.Atoi(v[0])
}

func (c CmdOptions) IntDefault(key string, defaultI int) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return defaultI, nil
	}
	return strconv.Atoi(v[0])
}

func msg(message string) *Response {
	return &Response{message: message}
}

func (sc *ShellController) start(cmd *shellcmd) (*Response, error) {
	if sc.coord.IsRunning() {
		return nil, errors.New("search is already running; `stop` it first")
	}
	if _, ok := cmd.options["workers"]; ok {
		n, err := cmd.options.Int("workers")
		if err != nil {
			return nil, err
		}
		if err := sc.coord.SetWorkers(n); err != nil {
			return nil, err
		}
	}
	if err := sc.coord.Start(); err != nil {
		return nil, err
	}
	st := sc.coord.Statistics()
	return msg(fmt.Sprintf("search started with %d workers from %d (run %s)",
		sc.coord.Options().Workers, st.HighestNumberChecked+1, st.RunID)), nil
}

func (sc *ShellController) stop(cmd *shellcmd) (*Response, error) {
	if !sc.coord.IsRunning() {
		return nil, errors.New("no search is running")
	}
	sc.coord.Stop()
	return sc.status(cmd)
}

type statusView struct {
	Running                bool `yaml:"running"`
	Workers                int  `yaml:"workers"`
	coordinator.Statistics `yaml:",inline"`
	CachedPrimes           int `yaml:"cached_primes"`
	LostRanges             int `yaml:"lost_ranges"`
}

func (sc *ShellController) status(cmd *shellcmd) (*Response, error) {
	v := statusView{
		Running:      sc.coord.IsRunning(),
		Workers:      sc.coord.Options().Workers,
		Statistics:   sc.coord.Statistics(),
		CachedPrimes: sc.coord.PrimeCache().Len(),
		LostRanges:   len(sc.coord.LostRanges()),
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msg(strings.TrimRight(string(out), "\n")), nil
}

func workerTableHeader() string {
	return "  ID  Status   Range                          Progress  Primes     Numbers/s   Batch   Mean ms   Stdev ms"
}

func workerTableRow(ws coordinator.WorkerState) string {
	rng := "-"
	if ws.CurrentRangeEnd > 0 {
		rng = fmt.Sprintf("[%d, %d]", ws.CurrentRangeStart, ws.CurrentRangeEnd)
	}
	return fmt.Sprintf("%4d  %-8s %-30s %7.1f%%  %-10d %-11.0f %-7d %-9.1f %.1f",
		ws.ID, ws.Status, rng, ws.Progress*100, ws.PrimesFoundTotal,
		ws.NumbersPerSecond, ws.BatchSize, ws.MeanBatchMs, ws.BatchMsStdev)
}

func (sc *ShellController) workers(cmd *shellcmd) (*Response, error) {
	states := sc.coord.WorkerStates()
	if len(states) == 0 {
		return msg("no workers; `start` a search first"), nil
	}
	if _, ok := cmd.options["hist"]; ok {
		return sc.batchHistogram(cmd.options.String("hist"), len(states))
	}
	var b strings.Builder
	b.WriteString(workerTableHeader())
	for _, ws := range states {
		b.WriteString("\n")
		b.WriteString(workerTableRow(ws))
	}
	return msg(b.String()), nil
}

// batchHistogram plots recent batch compute times for one worker, or for
// every worker when which is "all".
func (sc *ShellController) batchHistogram(which string, nworkers int) (*Response, error) {
	var samples []float64
	label := "all workers"
	if which == "all" {
		for id := 0; id < nworkers; id++ {
			samples = append(samples, sc.coord.RecentBatchTimes(id)...)
		}
	} else {
		id, err := strconv.Atoi(which)
		if err != nil {
			return nil, fmt.Errorf("-hist takes a worker id or all: %w", err)
		}
		if id < 0 || id >= nworkers {
			return nil, fmt.Errorf("no worker %d", id)
		}
		samples = sc.coord.RecentBatchTimes(id)
		label = fmt.Sprintf("worker %d", id)
	}
	if len(samples) == 0 {
		return msg("no batch timings yet"), nil
	}
	h := histogram.Hist(histBins, samples)
	var b strings.Builder
	fmt.Fprintf(&b, "batch compute time (ms), %s, last %d batches\n", label, len(samples))
	if err := histogram.Fprint(&b, h, histogram.Linear(histWidth)); err != nil {
		return nil, err
	}
	return msg(strings.TrimRight(b.String(), "\n")), nil
}

func (sc *ShellController) primes(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: primes <max> [-limit N]")
	}
	max, err := strconv.ParseUint(cmd.args[0], 10, 64)
	if err != nil {
		return nil, err
	}
	limit, err := cmd.options.IntDefault("limit", defaultPrimesShown)
	if err != nil {
		return nil, err
	}
	cache := sc.coord.PrimeCache()
	if max > cache.Ceiling() {
		return nil, fmt.Errorf("only primes up to %d are stored", cache.Ceiling())
	}
	primes := cache.PrimesUpTo(max)
	var b strings.Builder
	fmt.Fprintf(&b, "%d stored primes <= %d", len(primes), max)
	if len(primes) > limit && limit >= 0 {
		fmt.Fprintf(&b, " (showing the largest %d)", limit)
		primes = primes[len(primes)-limit:]
	}
	if len(primes) > 0 {
		b.WriteString("\n")
		for i, p := range primes {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(strconv.FormatUint(p, 10))
		}
	}
	return msg(b.String()), nil
}

func (sc *ShellController) lost(cmd *shellcmd) (*Response, error) {
	lost := sc.coord.LostRanges()
	if len(lost) == 0 {
		return msg("no ranges waiting to be reissued"), nil
	}
	parts := make([]string, len(lost))
	for i, r := range lost {
		parts[i] = r.String()
	}
	return msg(strings.Join(parts, "\n")), nil
}

func (sc *ShellController) reset(cmd *shellcmd) (*Response, error) {
	if err := sc.coord.Reset(); err != nil {
		return nil, err
	}
	return msg("search reset; the next start begins at 2"), nil
}
