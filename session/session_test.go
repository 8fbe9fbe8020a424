package session_test

import (
	"testing"

	"github.com/hermes-go/hermes/herrors"
	"github.com/hermes-go/hermes/session"
	"github.com/stretchr/testify/require"
)

func TestSession_DefaultState(t *testing.T) {
	s := session.New()
	require.True(t, s.IsUnused())
	require.False(t, s.IsReading())
	require.False(t, s.IsWriting())
	require.Equal(t, "<3", s.HeartbeatMessage())
}

func TestSession_StateTransitions(t *testing.T) {
	s := session.New()
	s.SetState(session.Reading)
	require.True(t, s.IsReading())
	s.SetState(session.Writing)
	require.True(t, s.IsWriting())
}

func TestSession_Options(t *testing.T) {
	s := session.New()
	require.NoError(t, s.ActivateOption("deadline"))
	require.True(t, s.IsOptionActivated("deadline"))
	require.False(t, s.IsOptionActivated("state"))
	require.False(t, s.IsOptionActivated("heartbeat"))

	require.NoError(t, s.ActivateOption("state"))
	require.NoError(t, s.ActivateOption("heartbeat"))
	require.True(t, s.IsOptionActivated("state"))
	require.True(t, s.IsOptionActivated("heartbeat"))
}

func TestSession_ActivateUnknownOption_IsConfigurationError(t *testing.T) {
	s := session.New()
	err := s.ActivateOption("bogus")
	require.Error(t, err)
	require.True(t, herrors.Is(err, herrors.KindConfiguration))
	require.False(t, s.IsOptionActivated("bogus"))
}

func TestSession_HeartbeatMessage(t *testing.T) {
	s := session.New()
	s.SetHeartbeatMessage("test")
	require.Equal(t, "test", s.HeartbeatMessage())
}

func TestSession_Stop_Idempotent(t *testing.T) {
	s := session.New()
	require.NoError(t, s.ActivateOption("deadline"))
	require.NoError(t, s.ActivateOption("state"))
	require.NoError(t, s.ActivateOption("heartbeat"))

	s.Stop()
	require.False(t, s.IsOptionActivated("deadline"))
	require.False(t, s.IsOptionActivated("state"))
	require.False(t, s.IsOptionActivated("heartbeat"))

	require.NotPanics(t, s.Stop)
}
