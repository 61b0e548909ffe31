package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/flightrelay/internal/relay/dispatcher"
)

func TestPrintCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printCommands(&buf, dispatcher.NewRegistry(dispatcher.DefaultEntries()...)))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 10)
	assert.True(t, strings.HasPrefix(lines[0], "TOKEN"))

	for _, token := range []string{"ARM", "AUTO", "DISARM", "LAND", "RTL", "STABILIZE", "START_MISSION", "TAKEOFF", "WAYPOINTS"} {
		assert.Contains(t, out, token)
	}
}

func TestCommandsSubcommand(t *testing.T) {
	cmd := newCommandsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "START_MISSION")
}
