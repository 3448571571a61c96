package progress

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

const (
	barWidth        = 40
	listingLimit    = 10
	reportFailLimit = 5
	rule            = "============================================================"
)

func renderDocumentListing(docs []models.DocumentRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nDocuments to process (%d total):\n%s\n", len(docs), rule)
	for i, d := range docs {
		if i == listingLimit {
			break
		}
		fmt.Fprintf(&b, "  %3d. %-40s (ID: %s... Type: %s)\n", i+1, truncate(d.Name, 40), truncate(d.ID, 8), d.Type())
	}
	if len(docs) > listingLimit {
		fmt.Fprintf(&b, "  ... and %d more documents\n", len(docs)-listingLimit)
	}
	b.WriteString(rule + "\n\n")
	return b.String()
}

func renderProgress(s *SessionState) string {
	total := s.TotalDocuments
	if total == 0 {
		return ""
	}
	done := s.ProcessedCount + s.FailedCount
	filled := barWidth * done / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	avg := mean(s.ProcessingTimes)

	var b strings.Builder
	fmt.Fprintf(&b, "\nProgress: [%s] %d/%d (%.1f%%)\n", bar, done, total, percent(done, total))
	fmt.Fprintf(&b, "   Processed: %d | Failed: %d | Avg time: %.1fs\n", s.ProcessedCount, s.FailedCount, avg)
	if left := total - done; avg > 0 && left > 0 {
		fmt.Fprintf(&b, "   Estimated time remaining: %.1f minutes\n", avg*float64(left)/60)
	}
	return b.String()
}

func renderSummaryReport(s *SessionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nPROCESSING SUMMARY REPORT\n%s\n", rule, rule)

	total := s.TotalDocuments
	b.WriteString("\nOverall Statistics:\n")
	fmt.Fprintf(&b, "   Total Documents: %d\n", total)
	fmt.Fprintf(&b, "   Successfully Processed: %d (%.1f%%)\n", s.ProcessedCount, percent(s.ProcessedCount, total))
	fmt.Fprintf(&b, "   Failed: %d (%.1f%%)\n", s.FailedCount, percent(s.FailedCount, total))

	if times := s.ProcessingTimes; len(times) > 0 {
		b.WriteString("\nProcessing Times:\n")
		fmt.Fprintf(&b, "   Total Time: %.1f minutes\n", sum(times)/60)
		fmt.Fprintf(&b, "   Average per Document: %.1f seconds\n", mean(times))
		fmt.Fprintf(&b, "   Fastest: %.1f seconds\n", slices.Min(times))
		fmt.Fprintf(&b, "   Slowest: %.1f seconds\n", slices.Max(times))
	}

	if failed := s.FailedDocuments; len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed Documents (%d):\n", len(failed))
		for i, f := range failed {
			if i == reportFailLimit {
				break
			}
			fmt.Fprintf(&b, "   - %s: %s\n", truncate(f.Name, 40), truncate(f.Error, 50))
		}
		if len(failed) > reportFailLimit {
			fmt.Fprintf(&b, "   ... and %d more\n", len(failed)-reportFailLimit)
		}
		b.WriteString("\n   To retry failed documents, run with --retry-failed\n")
	}

	b.WriteString("\nSession Information:\n")
	fmt.Fprintf(&b, "   Session File: %s\n", s.SessionFile)
	fmt.Fprintf(&b, "   Started: %s\n", s.SessionStart.Format("2006-01-02T15:04:05"))
	if s.LastCheckpoint != nil {
		fmt.Fprintf(&b, "   Last Checkpoint: %s\n", s.LastCheckpoint.Format("2006-01-02T15:04:05"))
	}
	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
