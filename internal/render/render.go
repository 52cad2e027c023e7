package render

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/ai-image-tools/internal/usecase"
)

// Text writes report as a plain-text table. The top-scoring row is marked
// with an arrow.
func Text(w io.Writer, report *usecase.Report) error {
	if report == nil {
		return nil
	}

	if _, err := fmt.Fprintf(w, "%s\n\n", report.Title); err != nil {
		return err
	}

	if report.Error != nil {
		if _, err := fmt.Fprintf(w, "error: %s\n", report.Error.Message); err != nil {
			return err
		}
		if report.Error.StatusCode != 0 {
			if _, err := fmt.Fprintf(w, "status: %d\n", report.Error.StatusCode); err != nil {
				return err
			}
		}
		if report.Error.Body != "" {
			if _, err := fmt.Fprintf(w, "%s\n", report.Error.Body); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "\n%s\n", report.Message)
		return err
	}

	if len(report.Predictions) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		if _, err := fmt.Fprintln(tw, "\tLABEL\tSCORE"); err != nil {
			return err
		}
		topMarked := false
		for _, p := range report.Predictions {
			marker := ""
			if !topMarked && report.Top != nil && p == *report.Top {
				marker = "->"
				topMarked = true
			}
			if _, err := fmt.Fprintf(tw, "%s\t%s\t%.4f\n", marker, p.Label, p.Score); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, report.Message)
	return err
}
