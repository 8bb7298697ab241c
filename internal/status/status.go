// Package status renders the queue and archived builds as plain text for
// the command line.
package status

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/queue"
	"github.com/dusk-indust/adqueue/internal/request"
)

// stateLabels are the short labels shown in the STATE column.
var stateLabels = map[request.State]string{
	request.StateDrafting:          "draft",
	request.StateProcessing:        "processing",
	request.StateAwaitingSelection: "pick variation",
	request.StateAnnotating:        "annotating",
	request.StateReady:             "ready",
	request.StateBuilt:             "built",
}

// BuildLine is one row of the build list.
type BuildLine struct {
	ID        string
	CreatedAt time.Time
	Summary   string
	Applied   int
	Skipped   int
}

// WriteQueue prints one row per request followed by the conflicts.
func WriteQueue(w io.Writer, reqs []request.Summary, conflicts []queue.Conflict) error {
	if len(reqs) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tCATEGORY\tLEVEL\tSTATE\tTEXT")
	for _, r := range reqs {
		marker := "  "
		switch {
		case r.LastError != "":
			marker = "✗ "
		case r.Conflict:
			marker = "! "
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n",
			marker, shortID(r.ID), r.Category, level(r.Level), stateLabel(r), truncate(r.Text, 48))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var notes []string
	for _, r := range reqs {
		if r.LastError != "" {
			notes = append(notes, fmt.Sprintf("%s failed: %s (retry with 'adqueue retry %s')", shortID(r.ID), r.LastError, r.ID))
		}
	}
	for _, c := range conflicts {
		notes = append(notes, fmt.Sprintf("[%s] %s", c.Severity, c.Reason))
	}
	if len(notes) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	for _, n := range notes {
		if _, err := fmt.Fprintf(w, "  %s\n", n); err != nil {
			return err
		}
	}
	return nil
}

// WritePreflight prints the pre-build advisory.
func WritePreflight(w io.Writer, ready, pending int, building bool, conflicts []queue.Conflict) error {
	if building {
		fmt.Fprintln(w, "A build is in progress.")
	}
	fmt.Fprintf(w, "%d ready, %d still pending.\n", ready, pending)
	if pending > 0 {
		fmt.Fprintln(w, "Pending requests are not part of this build.")
	}
	for _, c := range conflicts {
		fmt.Fprintf(w, "  -> %s\n", c.Reason)
	}
	if len(conflicts) > 0 {
		_, err := fmt.Fprintln(w, "Confirm with --confirm to build anyway.")
		return err
	}
	return nil
}

// WriteBuilds prints the build list, newest first as given.
func WriteBuilds(w io.Writer, builds []BuildLine) error {
	if len(builds) == 0 {
		_, err := fmt.Fprintln(w, "No builds yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUILD\tCREATED\tAPPLIED\tSKIPPED\tSUMMARY")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			b.ID, b.CreatedAt.UTC().Format(time.DateTime), b.Applied, b.Skipped, truncate(b.Summary, 60))
	}
	return tw.Flush()
}

// LinesFor converts archived records to list rows.
func LinesFor(recs []*archive.BuildRecord) []BuildLine {
	lines := make([]BuildLine, 0, len(recs))
	for _, rec := range recs {
		applied, skipped := rec.Counts()
		lines = append(lines, BuildLine{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt,
			Summary:   rec.Summary,
			Applied:   applied,
			Skipped:   skipped,
		})
	}
	return lines
}

// WriteBuild prints one build with the outcome and QA label of every
// request it consumed.
func WriteBuild(w io.Writer, rec *archive.BuildRecord) error {
	applied, skipped := rec.Counts()
	fmt.Fprintf(w, "Build: %s\n", rec.ID)
	fmt.Fprintf(w, "Created: %s\n", rec.CreatedAt.UTC().Format(time.DateTime))
	fmt.Fprintf(w, "Summary: %s\n", rec.Summary)
	fmt.Fprintf(w, "Applied %d, skipped %d\n\n", applied, skipped)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST\tCATEGORY\tLEVEL\tOUTCOME\tQA")
	for _, r := range rec.Requests {
		outcome := "-"
		if r.Outcome != nil {
			outcome = string(r.Outcome.Kind)
			if r.Outcome.Reason != "" {
				outcome += ": " + r.Outcome.Reason
			}
		}
		qa := string(r.QA)
		if qa == "" {
			qa = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, level(r.Level), outcome, qa)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, c := range rec.Changes {
		fmt.Fprintf(w, "  %s %s\n", c.Op, c.Path)
	}
	return nil
}

func stateLabel(r request.Summary) string {
	label, ok := stateLabels[r.State]
	if !ok {
		label = string(r.State)
	}
	if r.State == request.StateAwaitingSelection && r.Variations > 0 {
		label += " (" + strconv.Itoa(r.Variations) + ")"
	}
	return label
}

func level(l *int) string {
	if l == nil {
		return "all"
	}
	return strconv.Itoa(*l)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
