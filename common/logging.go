// Package common provides logging and small shared utilities used across the
// adaptor framework: the push engine, server, scheduler and the other
// components that log all do so through the same configured *logrus.Logger
// instance.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output by level: errors (and above) go to
// stderr, everything else to stdout. This keeps container log collectors
// that treat the two streams differently working without extra hooks.
type OutputSplitter struct{}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	for _, marker := range []string{"level=error", "level=fatal", "level=panic",
		`"level":"error"`, `"level":"fatal"`, `"level":"panic"`} {
		if bytes.Contains(p, []byte(marker)) {
			return os.Stderr.Write(p)
		}
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logger. Components that don't need per-request
// or per-push context fields log through this directly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
