package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
)

// Column widths of the dry-run summary
const (
	idWidth       = 8
	filenameWidth = 30
	keywordWidth  = 20
	termsWidth    = 30
	ruleWidth     = idWidth + filenameWidth + keywordWidth + termsWidth + 3
)

// SummaryRow is one object in the dry-run summary
type SummaryRow struct {
	ObjectID int64
	Filename string
	Keywords []string
	Terms    []string // after mode filtering
}

// WriteSummary renders the dry-run table.
func WriteSummary(w io.Writer, rows []SummaryRow) error {
	rule := strings.Repeat("=", ruleWidth)
	lines := []string{
		"",
		headerStyle.Render("DRY RUN SUMMARY"),
		rule,
		headerStyle.Render(columns("ID", "FILENAME", "MATCHED KEYWORDS", "TAXONOMY TERMS")),
		rule,
	}
	for _, r := range rows {
		lines = append(lines, columns(
			strconv.FormatInt(r.ObjectID, 10),
			truncate(r.Filename, filenameWidth-2),
			truncate(strings.Join(r.Keywords, ","), keywordWidth-2),
			truncate(strings.Join(r.Terms, ","), termsWidth-2),
		))
	}
	lines = append(lines, rule, "", mutedStyle.Render("This was a dry run. Run without --dry-run to apply changes."))

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func columns(id, filename, keywords, terms string) string {
	return fmt.Sprintf("%-*s %-*s %-*s %-*s", idWidth, id, filenameWidth, filename, keywordWidth, keywords, termsWidth, terms)
}

// truncate shortens s to max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
