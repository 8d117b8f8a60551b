package commands

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestRenderTable_AlignsColumns(t *testing.T) {
	out := renderTable([]column{
		{"USER", plain},
		{"STATUS", statusStyle},
		{"LAST SEEN", plain},
	}, [][]string{
		{"u1", "online", "09:00:00"},
		{"user-22", "back_soon", "09:01:30"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "online")
	require.Contains(t, lines[2], "back_soon")

	// every row is as wide as the widest one
	require.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(lines[1]))
	require.Equal(t, lipgloss.Width(lines[1]), lipgloss.Width(lines[2]))
}
