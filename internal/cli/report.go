package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/reminder"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	sentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			PaddingLeft(2)
)

// RenderReports writes a summary block per engine report.
func RenderReports(w io.Writer, reports []*reminder.Report) {
	for i, r := range reports {
		if r == nil {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderReport(w, r)
	}
}

func renderReport(w io.Writer, r *reminder.Report) {
	title := fmt.Sprintf("%s engine @ %s (%s)", r.Engine, r.Now.UTC().Format(time.RFC3339), r.Duration().Round(time.Millisecond))
	fmt.Fprintln(w, headerStyle.Render(title))

	if r.LeaseHeld {
		fmt.Fprintln(w, skippedStyle.Render("  lease held by another pass, nothing evaluated"))
		return
	}

	summary := strings.Join([]string{
		sentStyle.Render(fmt.Sprintf("sent %d", r.Sent())),
		skippedStyle.Render(fmt.Sprintf("skipped %d", r.Skipped())),
		failedStyle.Render(fmt.Sprintf("failed %d", r.Failed())),
	}, "  ")
	fmt.Fprintf(w, "  %s  (%d messages)\n", summary, r.Messages())

	reasons := r.SkipReasons()
	if len(reasons) > 0 {
		keys := make([]string, 0, len(reasons))
		for reason := range reasons {
			keys = append(keys, string(reason))
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, reasons[constants.SkipReason(k)])
		}
		fmt.Fprintln(w, detailStyle.Render("skips: "+strings.Join(parts, " ")))
	}

	for _, o := range r.Failures() {
		line := fmt.Sprintf("✗ %s", o.Key)
		if o.Err != nil {
			line = fmt.Sprintf("✗ %s [%s] %v", o.Key, o.Err.Kind, o.Err.Err)
		}
		if len(o.Sent) > 0 {
			line += fmt.Sprintf(" (delivered %d)", len(o.Sent))
		}
		fmt.Fprintln(w, detailStyle.Render(failedStyle.Render(line)))
	}
}
