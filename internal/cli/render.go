package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#D97706")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")

	headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).PaddingRight(2)
	cellStyle       = lipgloss.NewStyle().PaddingRight(2)
	dimStyle        = lipgloss.NewStyle().Foreground(dim)
	okStyle         = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// renderTable lays rows out in left-aligned columns sized to their widest cell.
func renderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return dimStyle.Render("(none)") + "\n"
	}
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		rendered := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			// Style widths include the two cells of right padding.
			rendered[i] = style.Width(widths[i] + 2).Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, rendered...), " "))
		b.WriteString("\n")
	}
	writeRow(headers, headerCellStyle)
	for _, row := range rows {
		writeRow(row, cellStyle)
	}
	return b.String()
}

func formatRupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}
