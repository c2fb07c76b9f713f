package output

import (
	"fmt"
	"io"
	"time"

	"linuxst/session"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle = lipgloss.NewStyle().Bold(true)
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Started(pid int) {
	fmt.Fprintf(f.w, "%s recording (pid %d), toggle again to stop\n", okStyle.Render("●"), pid)
}

// Stopped reports the result of a session stopped from another process.
func (f *Formatter) Stopped(pid int, o *session.Outcome) {
	if o == nil {
		f.Warning(fmt.Sprintf("pid %d stopped without recording an outcome", pid))
		return
	}
	switch o.Kind {
	case session.KindNone:
		f.Success(fmt.Sprintf("delivered %d chars via %s (%s audio)", o.Chars, o.Delivery, formatSeconds(o.AudioSeconds)))
	case session.KindDelivery:
		f.Warning(o.Message)
		if o.TranscriptSaved {
			f.Info("transcript saved, run `linuxst last --copy`")
		}
	default:
		f.Error(o.Message)
	}
}

func (f *Formatter) Transcript(text string, saved time.Time) {
	fmt.Fprintln(f.w, text)
	if !saved.IsZero() {
		fmt.Fprintln(f.w, dimStyle.Render("saved "+saved.Local().Format(time.DateTime)))
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "%s %s\n", errStyle.Render("✗"), msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "%s %s\n", dimStyle.Render("·"), msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "%s %s\n", okStyle.Render("✓"), msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "%s %s\n", warnStyle.Render("!"), msg)
}

func (f *Formatter) Field(name, value string) {
	fmt.Fprintf(f.w, "  %s %s\n", labelStyle.Render(name+":"), value)
}

func (f *Formatter) DeviceListItem(index int, name, id string, bluetooth bool) {
	suffix := ""
	if bluetooth {
		suffix = warnStyle.Render(" (bluetooth)")
	}
	fmt.Fprintf(f.w, "  %d  %s%s %s\n", index, name, suffix, dimStyle.Render(id))
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  %s %s: %s\n", okStyle.Render("✓"), name, detail)
	} else {
		fmt.Fprintf(f.w, "  %s %s: %s\n", errStyle.Render("✗"), name, detail)
	}
}

func formatSeconds(s float64) string {
	return FormatDuration(time.Duration(s * float64(time.Second)))
}

func FormatDuration(d time.Duration) string {
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
