package commands

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorOnline   = "42"
	colorBackSoon = "214"
	colorOffline  = "241"
	colorHeader   = "39"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorHeader)).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

func plain(string) lipgloss.Style { return cellStyle }

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "online":
		return cellStyle.Foreground(lipgloss.Color(colorOnline))
	case "back_soon":
		return cellStyle.Foreground(lipgloss.Color(colorBackSoon))
	default:
		return cellStyle.Foreground(lipgloss.Color(colorOffline))
	}
}

type column struct {
	title string
	style func(cell string) lipgloss.Style
}

// renderTable lays rows out in columns as wide as their widest cell
func renderTable(cols []column, rows [][]string) string {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c.title)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	line := make([]string, len(cols))
	for i, c := range cols {
		line[i] = headerStyle.Width(widths[i] + 2).Render(c.title)
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...))
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			line[i] = cols[i].style(cell).Width(widths[i] + 2).Render(cell)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...))
		sb.WriteString("\n")
	}
	return sb.String()
}
