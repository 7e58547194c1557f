package store

import (
	"bytes"
	"testing"

	"github.com/kagu/kunquat/internal/kerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRejectsOutOfRangeIndex(t *testing.T) {
	s := New()
	err := s.Set("channel_64/name.json", []byte(`"x"`))
	require.Error(t, err)
	assert.True(t, kerr.As(err, kerr.Argument))
	assert.False(t, s.Has("channel_64/name.json"))
}

func TestTypedLeavesRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.PutJSON("au_0/proc_0/p_volume.jsonf", 0.5))
	v, err := s.GetFloat("au_0/proc_0/p_volume.jsonf")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	require.NoError(t, s.PutJSON("song_0/tempo.jsonb", true))
	b, err := s.GetBool("song_0/tempo.jsonb")
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, s.PutJSON("pattern_0/length.jsont", [2]int64{4, 0}))
	ts, err := s.GetTstamp("pattern_0/length.jsont")
	require.NoError(t, err)
	assert.Equal(t, int64(4), ts.Beats)
}

func TestDumpLoadRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.PutJSON("au_1/name.json", "lead"))

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf))

	out := New()
	require.NoError(t, out.Load(&buf))

	var name string
	require.NoError(t, out.GetJSON("au_1/name.json", &name))
	assert.Equal(t, "lead", name)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	require.NoError(t, s.PutJSON("song_0/x.jsoni", int64(1)))
	clone := s.Clone()
	require.NoError(t, s.PutJSON("song_0/x.jsoni", int64(2)))

	v, err := clone.GetInt("song_0/x.jsoni")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
