package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLookups(t *testing.T) {
	t.Setenv("RUNSTATE_TEST_LIST", " a, ,b,c ")
	t.Setenv("RUNSTATE_TEST_DURATION", "1500ms")
	t.Setenv("RUNSTATE_TEST_BOOL", "true")
	t.Setenv("RUNSTATE_TEST_INT", "x")

	require.Equal(t, []string{"a", "b", "c"}, Strings("RUNSTATE_TEST_LIST", nil))
	require.Equal(t, []string{"d"}, Strings("RUNSTATE_TEST_UNSET", []string{"d"}))

	d, err := Duration("RUNSTATE_TEST_DURATION", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	b, err := Bool("RUNSTATE_TEST_BOOL", false)
	require.NoError(t, err)
	require.True(t, b)

	_, err = Int("RUNSTATE_TEST_INT", 1)
	require.ErrorContains(t, err, "parse RUNSTATE_TEST_INT")
}

func TestKeyValues(t *testing.T) {
	t.Setenv("RUNSTATE_TEST_PARAMS", "env=prod, flow.num.job = 3")
	got, err := KeyValues("RUNSTATE_TEST_PARAMS")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"env": "prod", "flow.num.job": "3"}, got)

	t.Setenv("RUNSTATE_TEST_PARAMS", "broken")
	_, err = KeyValues("RUNSTATE_TEST_PARAMS")
	require.Error(t, err)

	got, err = KeyValues("RUNSTATE_TEST_UNSET")
	require.NoError(t, err)
	require.Empty(t, got)
}
