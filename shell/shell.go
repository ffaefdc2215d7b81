// Package shell is an interactive front end to a prime search.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/domino14/primesearch/config"
	"github.com/domino14/primesearch/coordinator"
)

var (
	errNoData            = errors.New("no data in line")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
	errQuit              = errors.New("sending quit signal")
)

type ShellController struct {
	l   *readline.Instance
	out io.Writer

	cfg   *config.Config
	coord *coordinator.Coordinator
}

type shellcmd struct {
	cmd     string
	args    []string
	options CmdOptions
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

// NewShellController sets up readline and a stopped coordinator built from
// cfg. Observers are attached to the coordinator for its whole life.
func NewShellController(cfg *config.Config, observers ...coordinator.Observer) (*ShellController, error) {
	sc, err := newController(cfg, nil, observers...)
	if err != nil {
		return nil, err
	}
	sc.l, err = readline.NewEx(&readline.Config{
		Prompt:          "\033[32mprimesearch>\033[0m ",
		HistoryFile:     cfg.GetString(config.ConfigHistoryFile),
		AutoComplete:    NewShellCompleter(),
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return nil, err
	}
	sc.out = sc.l.Stderr()
	return sc, nil
}

func newController(cfg *config.Config, out io.Writer, observers ...coordinator.Observer) (*ShellController, error) {
	opts := coordinator.OptionsFromConfig(cfg)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &ShellController{
		out:   out,
		cfg:   cfg,
		coord: coordinator.New(opts, observers...),
	}, nil
}

// Coordinator is the search this shell drives.
func (sc *ShellController) Coordinator() *coordinator.Coordinator {
	return sc.coord
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.out)
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// extractFields splits a line into a command, its positional arguments and
// its -key value options. Quoting follows shell rules.
func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := &shellcmd{cmd: fields[0], options: CmdOptions{}}
	for i := 1; i < len(fields); i++ {
		if strings.HasPrefix(fields[i], "-") && len(fields[i]) > 1 {
			if i == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			key := fields[i][1:]
			cmd.options[key] = append(cmd.options[key], fields[i+1])
			i++
			continue
		}
		cmd.args = append(cmd.args, fields[i])
	}
	return cmd, nil
}

func (sc *ShellController) command(cmd *shellcmd) (*Response, error) {
	switch cmd.cmd {
	case "start":
		return sc.start(cmd)
	case "stop":
		return sc.stop(cmd)
	case "status":
		return sc.status(cmd)
	case "workers":
		return sc.workers(cmd)
	case "primes":
		return sc.primes(cmd)
	case "lost":
		return sc.lost(cmd)
	case "reset":
		return sc.reset(cmd)
	case "help":
		return sc.help(cmd)
	case "exit", "bye":
		return nil, errQuit
	default:
		return nil, fmt.Errorf("command %q not recognized; try `help`", cmd.cmd)
	}
}

// Execute runs a single line. It returns false when the shell should quit.
func (sc *ShellController) Execute(sig chan os.Signal, line string) bool {
	cmd, err := extractFields(line)
	if errors.Is(err, errNoData) {
		return true
	}
	if err != nil {
		sc.showError(err)
		return true
	}
	resp, err := sc.command(cmd)
	if errors.Is(err, errQuit) {
		sig <- syscall.SIGINT
		return false
	}
	if err != nil {
		sc.showError(err)
		return true
	}
	if resp != nil && resp.message != "" {
		sc.showMessage(resp.message)
	}
	return true
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		if !sc.Execute(sig, strings.TrimSpace(line)) {
			break
		}
	}
	log.Debug().Msg("exiting-readline-loop")
}

// Cleanup stops any running search.
func (sc *ShellController) Cleanup() {
	sc.coord.Stop()
}
