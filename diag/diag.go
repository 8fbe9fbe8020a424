// Package diag provides the pluggable diagnostic sink Hermes's
// diagnostics (an async completion error with no registered handler, an
// accept-loop fatal error) go through, rather than straight to stderr,
// so tests can substitute a capturing sink and production code can
// redirect output. A Post discarded after Stop is not reported.
package diag

import (
	"os"

	"github.com/rs/zerolog"
)

// Field is a single structured key/value attached to a diagnostic record.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Sink receives Hermes's diagnostics. Warn is for recoverable or
// expected conditions; no Hermes package currently emits one. Fatal is
// used for errors raised inside an async completion that has no
// registered callback to report through, and for accept-loop failures.
type Sink interface {
	Warn(op string, err error, fields ...Field)
	Fatal(op string, err error, fields ...Field)
}

// zerologSink is the default Sink: zerolog writing to stderr, one
// prefixed field per record ("[Messenger]" for Session/Stream/Endpoint,
// "[protobuf]" for ProtobufIo).
type zerologSink struct {
	logger zerolog.Logger
	prefix string
}

// NewStderr builds the default Sink, tagging every record with prefix
// (e.g. "[Messenger]" or "[protobuf]").
func NewStderr(prefix string) Sink {
	return &zerologSink{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger(),
		prefix: prefix,
	}
}

func (s *zerologSink) event(ev *zerolog.Event, op string, err error, fields []Field) {
	e := ev.Str("prefix", s.prefix).Str("op", op)
	if err != nil {
		e = e.Err(err)
	}
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	e.Msg(s.prefix + " " + op)
}

func (s *zerologSink) Warn(op string, err error, fields ...Field) {
	s.event(s.logger.Warn(), op, err, fields)
}

func (s *zerologSink) Fatal(op string, err error, fields ...Field) {
	s.event(s.logger.Error(), op, err, fields)
}

// discardSink is a Sink that drops every record; useful in tests that
// only care about return values.
type discardSink struct{}

func (discardSink) Warn(string, error, ...Field)  {}
func (discardSink) Fatal(string, error, ...Field) {}

// Discard returns a Sink that drops every diagnostic.
func Discard() Sink { return discardSink{} }
