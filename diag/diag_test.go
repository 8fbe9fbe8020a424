package diag_test

import (
	"errors"
	"testing"

	"github.com/hermes-go/hermes/diag"
	"github.com/stretchr/testify/require"
)

func TestDiscardSink_NeverPanics(t *testing.T) {
	s := diag.Discard()
	require.NotPanics(t, func() {
		s.Warn("Stream.Send", errors.New("boom"), diag.F("bytes", 12))
		s.Fatal("Endpoint.accept", errors.New("boom"))
	})
}

func TestStderrSink_NeverPanics(t *testing.T) {
	s := diag.NewStderr("[Messenger]")
	require.NotPanics(t, func() {
		s.Warn("Stream.Receive", nil)
		s.Fatal("Endpoint.accept", errors.New("boom"), diag.F("attempt", 3))
	})
}
