// Package log holds the node's zerolog loggers: a root Logger and one
// child per component, tagged with a "component" field.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the root logger every component logger derives from.
var Logger zerolog.Logger

// Component loggers. They are rebuilt whenever Init swaps the root.
var (
	Bridge   zerolog.Logger
	Tree     zerolog.Logger
	Registry zerolog.Logger
	Rewards  zerolog.Logger
	P2P      zerolog.Logger
	RPC      zerolog.Logger
	Storage  zerolog.Logger
	Node     zerolog.Logger
)

var components = map[string]*zerolog.Logger{
	"bridge":   &Bridge,
	"tree":     &Tree,
	"registry": &Registry,
	"rewards":  &Rewards,
	"p2p":      &P2P,
	"rpc":      &RPC,
	"storage":  &Storage,
	"node":     &Node,
}

const consoleTimeFormat = "15:04:05"

func init() {
	setRoot(NewConsoleLogger(os.Stdout, "info"))
}

// Init configures the root logger. Stdout gets colored console lines, or
// JSON when jsonOutput is set. A non-empty file additionally receives
// every line as JSON.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = consoleWriter(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	setRoot(newLogger(out, level))
	return nil
}

// NewConsoleLogger returns a colored, human-readable logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger returns a logger writing one JSON object per line.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// parseLevel maps a level name to its zerolog level, defaulting to info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func setRoot(l zerolog.Logger) {
	Logger = l
	for name, c := range components {
		*c = l.With().Str("component", name).Logger()
	}
}
