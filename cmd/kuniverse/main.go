// Command kuniverse runs the Kernel Universe simulation, either headless for
// a fixed number of steps or as a long-running HTTP server.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	flag "github.com/juju/gnuflag"
	"github.com/mattn/go-isatty"
)

const usage = `usage: kuniverse <command> [flags]

commands:
  headless   run a fixed number of steps and optionally write stats JSON
  server     run the simulation behind the HTTP API until interrupted

run "kuniverse <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "headless":
		err = runHeadless(os.Args[2:], os.Stdout)
	case "server":
		err = runServer(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("kuniverse failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// setupLogger installs the default slog logger. Terminals get the
// colourised charm handler, anything else gets JSON lines.
func setupLogger(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = log.NewWithOptions(w, log.Options{
			Level:           log.Level(lvl),
			ReportTimestamp: true,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// setFlags collects repeated NAME=VALUE parameter overrides. It implements
// flag.Value.
type setFlags []paramOverride

type paramOverride struct {
	Name  string
	Value float64
}

func (s *setFlags) String() string {
	parts := make([]string, len(*s))
	for i, o := range *s {
		parts[i] = fmt.Sprintf("%s=%v", o.Name, o.Value)
	}
	return strings.Join(parts, ",")
}

func (s *setFlags) Set(v string) error {
	name, raw, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=VALUE, got %q", v)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse value for %s: %w", name, err)
	}
	*s = append(*s, paramOverride{Name: strings.TrimSpace(name), Value: value})
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
