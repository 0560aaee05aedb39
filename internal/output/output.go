// Package output handles CLI output formatting
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/report"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Options for output handler
type Options struct {
	Quiet   bool // errors only, on stderr
	Verbose bool
	Raw     bool // print the report as JSON and nothing else
}

// Handler manages CLI output
type Handler struct {
	opts Options
	out  io.Writer
}

// New creates a new output handler writing to stdout
func New(opts Options) *Handler {
	return NewWithWriter(opts, os.Stdout)
}

// NewWithWriter creates an output handler writing to w
func NewWithWriter(opts Options, w io.Writer) *Handler {
	return &Handler{opts: opts, out: w}
}

func (h *Handler) console() bool {
	return !h.opts.Quiet && !h.opts.Raw
}

// PrintHeader prints the scan header
func (h *Handler) PrintHeader(version, mode string) {
	if !h.console() {
		return
	}
	hostname, _ := os.Hostname()
	body := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("Ferret IOC probe v"+version),
		SubtitleStyle.Render("Host: "+hostname),
		SubtitleStyle.Render("Mode: "+mode),
		SubtitleStyle.Render("Time: "+time.Now().UTC().Format("2006-01-02 15:04:05 UTC")),
	)
	fmt.Fprintln(h.out, FrameStyle.Render(body))
	fmt.Fprintln(h.out)
}

// PrintStep prints a scan step
func (h *Handler) PrintStep(current, total int, message string) {
	if !h.console() {
		return
	}
	fmt.Fprintf(h.out, "%s %s\n", StepActive.Render(fmt.Sprintf("[%d/%d]", current, total)), message)
}

// PrintDetail prints a detail line
func (h *Handler) PrintDetail(format string, args ...interface{}) {
	if !h.console() {
		return
	}
	fmt.Fprintln(h.out, StepDone.Render("      └─ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func (h *Handler) PrintError(format string, args ...interface{}) {
	if h.opts.Raw || h.opts.Quiet {
		fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
		return
	}
	fmt.Fprintln(h.out, ErrorStyle.Render("      └─ ERROR: "+fmt.Sprintf(format, args...)))
}

// PrintSummary prints confirmed and partially matched IOCs with their evidence
func (h *Handler) PrintSummary(rep *types.Report, groups []report.IocSummary, loaded int, duration time.Duration) {
	if !h.console() {
		return
	}

	head := fmt.Sprintf("Scan Complete! (%.1fs total)", duration.Seconds())
	counts := fmt.Sprintf("IOCs scanned: %d   Confirmed: %d   Errors: %d", loaded, len(rep.FoundIocs), len(rep.IocErrors))
	fmt.Fprintln(h.out)
	fmt.Fprintln(h.out, FrameStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(head), counts)))
	fmt.Fprintln(h.out)

	if len(groups) == 0 {
		fmt.Fprintln(h.out, SuccessStyle.Render("No IOC matched on this host."))
		return
	}

	for _, g := range groups {
		if !g.Confirmed && !h.opts.Verbose {
			continue
		}
		badge := PartialStyle.Render("PARTIAL")
		if g.Confirmed {
			badge = ConfirmedStyle.Render("CONFIRMED")
		}
		fmt.Fprintf(h.out, "%s #%d %s\n", badge, g.IocID, g.Name)
		for _, e := range g.Evidence {
			fmt.Fprintln(h.out, EvidenceStyle.Render("    ├─ "+truncate(e, 110)))
		}
		for _, e := range g.Errors {
			fmt.Fprintln(h.out, ErrorStyle.Render("    ├─ "+truncate(e, 110)))
		}
	}
	fmt.Fprintln(h.out)
}

// PrintDelivery prints where the report went
func (h *Handler) PrintDelivery(destination string, err error) {
	if !h.console() {
		return
	}
	if err != nil {
		fmt.Fprintln(h.out, ErrorStyle.Render(fmt.Sprintf("Report delivery to %s failed: %v", destination, err)))
		return
	}
	fmt.Fprintf(h.out, "Report: %s\n", destination)
}

// PrintRaw writes the report as indented JSON in raw mode
func (h *Handler) PrintRaw(rep *types.Report) error {
	if !h.opts.Raw {
		return nil
	}
	enc := json.NewEncoder(h.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
