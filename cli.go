package awmkit

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// FormatSnapshot renders a ProgressSnapshot as a single human-readable
// line, the way a CLI front-end would print periodic progress to stderr
// during a long embed/detect call. Unit counts are rendered with
// humanize.Comma for readability on large files; the line is only
// decorated with a carriage return (for in-place updates) when w is a
// real terminal.
func FormatSnapshot(w io.Writer, s ProgressSnapshot) string {
	var opName string
	switch s.Operation {
	case OperationEmbed:
		opName = "embed"
	case OperationDetect:
		opName = "detect"
	default:
		opName = "idle"
	}

	line := fmt.Sprintf("[op %d] %s: %s", s.OpID, opName, phaseLabel(s.Phase))
	if s.Determinate && s.TotalUnits > 0 {
		line += fmt.Sprintf(" (%s/%s)", humanize.Comma(s.CompletedUnits), humanize.Comma(s.TotalUnits))
	}
	if s.StepTotal > 0 {
		line += fmt.Sprintf(" step %d/%d", s.StepIndex+1, s.StepTotal)
	}
	if s.PhaseLabel != "" {
		line += ": " + s.PhaseLabel
	}

	if isTerminalWriter(w) {
		return "\r" + line
	}
	return line
}

func phaseLabel(p Phase) string {
	switch p {
	case PhasePrepareInput:
		return "preparing input"
	case PhasePrecheck:
		return "prechecking"
	case PhaseCore:
		return "running core"
	case PhaseRouteStep:
		return "routing pair"
	case PhaseMerge:
		return "merging"
	case PhaseEvidence:
		return "recording evidence"
	case PhaseCloneCheck:
		return "clone check"
	case PhaseFinalize:
		return "finalizing"
	default:
		return "idle"
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
