package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"dirigent/internal/coordinator"
)

const timeUnit = time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderSession formats the session outcome for the terminal. Escalations
// get the full record dump so a human can pick up where the loop stopped.
func renderSession(sess *coordinator.Session) string {
	var b strings.Builder

	switch sess.Outcome {
	case coordinator.OutcomeDone:
		b.WriteString(okStyle.Render("COMPLETE"))
	default:
		b.WriteString(failStyle.Render("ESCALATED"))
	}
	b.WriteString(fmt.Sprintf("  session %s\n", dimStyle.Render(sess.ID)))
	b.WriteString(fmt.Sprintf("  score %.0f/100 (%s), %d iteration(s), %d record(s)\n",
		sess.Status.Score, sess.Status.Grade, sess.Iterations, len(sess.Records)))

	if len(sess.Status.Unmet) > 0 {
		b.WriteString(fmt.Sprintf("  unmet: %s\n", warnStyle.Render(strings.Join(sess.Status.Unmet, ", "))))
	}

	if len(sess.Records) > 0 {
		b.WriteString(titleStyle.Render("Records") + "\n")
	}
	for _, rec := range sess.Records {
		mark := okStyle.Render("ok")
		if !rec.Success {
			mark = failStyle.Render("failed")
		}
		b.WriteString(fmt.Sprintf("  [%s] %s -> %s (%s)\n",
			mark, nameStyle.Render(rec.Directive.Target), rec.Assignment.Worker.ID, rec.Duration().Round(timeUnit)))
		if rec.Failure != nil {
			b.WriteString(fmt.Sprintf("      %s: %s\n", rec.Failure.Kind, rec.Failure.Detail))
		}
		if rep, ok := sess.Reports[rec.ID]; ok && rep.Flagged() {
			b.WriteString(fmt.Sprintf("      %s %.2f: %s\n",
				warnStyle.Render("unreliable"), rep.Unreliability,
				strings.Join(append(rep.UnverifiableClaims, rep.BoundaryViolations...), "; ")))
		}
	}
	return b.String()
}
