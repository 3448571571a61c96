package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/canoe"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
)

// destinationFlags mirrors the destination switches on the command line.
type destinationFlags struct {
	NoNotion   bool
	Sheets     bool
	SheetsOnly bool
	Firestore  bool
	Archive    bool
	Catalog    bool
}

func (f destinationFlags) options() (services.DestinationOptions, error) {
	if f.SheetsOnly {
		return services.DestinationOptions{Sheets: true}, nil
	}
	opts := services.DestinationOptions{
		Notion:    !f.NoNotion,
		Sheets:    f.Sheets,
		Firestore: f.Firestore,
		Archive:   f.Archive,
		Catalog:   f.Catalog,
	}
	if opts == (services.DestinationOptions{}) {
		return opts, fmt.Errorf("no destination selected: drop --no-notion or enable another destination")
	}
	return opts, nil
}

// selectFilter builds the Canoe filter from a preset or a days-back window.
// It returns the filter and a one-line description of where it came from.
func selectFilter(presets map[string]canoe.Preset, preset string, daysBack int, overrides canoe.Filter, today time.Time) (canoe.Filter, string, error) {
	if preset != "" && daysBack > 0 {
		return nil, "", fmt.Errorf("--preset and --days-back cannot be used together")
	}
	if daysBack > 0 {
		return canoe.DaysBackFilter(daysBack, overrides, today), fmt.Sprintf("last %d days", daysBack), nil
	}
	if preset == "" {
		preset = canoe.DefaultPreset
	}
	p, ok := presets[preset]
	if !ok {
		return nil, "", fmt.Errorf("unknown preset %q (available: %v)", preset, canoe.PresetNames(presets))
	}
	f, err := canoe.BuildFilter(p, overrides, today)
	if err != nil {
		return nil, "", err
	}
	return f, "preset " + preset, nil
}

// normalizeResumeArgs lets --resume be given without a value. A bare
// --resume, or one followed by another flag, becomes --resume=latest.
func normalizeResumeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		switch arg {
		case "--resume", "-resume":
			if i+1 == len(args) || strings.HasPrefix(args[i+1], "-") {
				out = append(out, "--resume="+services.ResumeLatest)
				continue
			}
		case "--resume=", "-resume=":
			out = append(out, "--resume="+services.ResumeLatest)
			continue
		}
		out = append(out, arg)
	}
	return out
}

// selectMode maps --resume and --retry-failed to a selector mode.
func selectMode(resumeSet bool, resume string, retryFailed bool) (services.Mode, error) {
	switch {
	case resumeSet && strings.HasPrefix(resume, "-"):
		return 0, fmt.Errorf("invalid --resume value %q: expected 'latest' or a session name", resume)
	case retryFailed && resumeSet:
		return 0, fmt.Errorf("--resume and --retry-failed cannot be used together")
	case retryFailed:
		return services.ModeRetryFailed, nil
	case resumeSet:
		return services.ModeResume, nil
	default:
		return services.ModeFresh, nil
	}
}

// setupLogging installs the default logger, writing to stdout and, unless
// disabled, to a dated file in the log directory. The returned closer
// releases the file.
func setupLogging(cfg config.Logging, noLogFile bool, now time.Time) (func() error, error) {
	var w io.Writer = os.Stdout
	closer := func() error { return nil }
	if !noLogFile {
		f, err := config.OpenLogFile(cfg.Dir, "financialdocumentflow", now)
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = f.Close
	}
	slog.SetDefault(config.NewLogger(cfg.Level, cfg.Format, w))
	return closer, nil
}
