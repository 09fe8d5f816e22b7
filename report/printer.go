// Package report prints monitor results, either as a terminal listing or
// as JSON lines.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/monitor"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Colour modes for the text format.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// headerWidth is the width the header bar is padded to.
const headerWidth = 80

// ErrUnknownFormat is returned by NewPrinter for unsupported formats.
var ErrUnknownFormat = errors.New("unknown output format")

const (
	ansiFgYellow   = "\x1b[33m"
	ansiFgGrey     = "\x1b[90m"
	ansiFgWhite    = "\x1b[97m"
	ansiFgDefault  = "\x1b[39m"
	ansiBgRed      = "\x1b[41m"
	ansiBgDarkGrey = "\x1b[48;5;235m"
	ansiBgDefault  = "\x1b[49m"
)

// Printer writes results to an io.Writer. It implements monitor.Reporter.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	color  bool
}

var _ monitor.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing format to w. In auto colour mode,
// ANSI colours are used only when w is a terminal.
func NewPrinter(w io.Writer, format, colorMode string) (*Printer, error) {
	switch format {
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	var color bool
	switch colorMode {
	case ColorAlways:
		color = true
	case ColorNever:
	case ColorAuto, "":
		color = isTerminal(w)
	default:
		return nil, fmt.Errorf("unknown color mode %q", colorMode)
	}

	return &Printer{w: w, format: format, color: color}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Report implements monitor.Reporter.
func (p *Printer) Report(_ context.Context, result monitor.Result) error {
	var buf bytes.Buffer

	if p.format == FormatJSON {
		// URLs are written as is, without \u0026 for &.
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(newJSONResult(result)); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		buf.WriteString(p.formatText(result))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.w.Write(buf.Bytes())

	return err
}

func (p *Printer) formatText(r monitor.Result) string {
	var sb strings.Builder

	pad := headerWidth - len("[] [] []") - utf8.RuneCountInString(r.Language) -
		utf8.RuneCountInString(r.Account) - utf8.RuneCountInString(r.Instance)
	if pad < 0 {
		pad = 0
	}

	sb.WriteString(p.paint(ansiBgDarkGrey, ansiBgDefault,
		"["+p.paint(ansiFgWhite, ansiFgDefault, r.Language)+"] "+
			"["+p.paint(ansiFgWhite, ansiFgDefault, r.Account)+"] "+
			"["+r.Instance+"]"+
			strings.Repeat(" ", pad),
	))
	sb.WriteByte('\n')

	for _, link := range r.Links {
		sb.WriteString("- ")
		sb.WriteString(p.paint(ansiFgYellow, ansiFgDefault, link.HrefClean))

		if link.Status >= 400 {
			sb.WriteString(" ")
			sb.WriteString(p.paint(ansiBgRed, ansiBgDefault, "["+strconv.Itoa(link.Status)+"]"))
		}

		if link.HrefCanonical != link.HrefClean {
			sb.WriteString("\n  ")
			sb.WriteString(p.paint(ansiFgGrey, ansiFgDefault, link.HrefCanonical))
		}

		if link.Href != link.HrefCanonical {
			sb.WriteString("\n  ")
			sb.WriteString(p.paint(ansiFgGrey, ansiFgDefault, link.Href))
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}

func (p *Printer) paint(on, off, s string) string {
	if !p.color {
		return s
	}

	return on + s + off
}

type jsonLink struct {
	Href          string `json:"href"`
	Text          string `json:"text"`
	Status        int    `json:"status,omitempty"`
	HrefCanonical string `json:"href_canonical"`
	HrefClean     string `json:"href_clean"`
	Probe         string `json:"probe"`
	ProbeError    string `json:"probe_error,omitempty"`
}

type jsonResult struct {
	StatusID string     `json:"status_id"`
	URL      string     `json:"url,omitempty"`
	Instance string     `json:"instance"`
	Account  string     `json:"account"`
	Language string     `json:"language"`
	Preview  string     `json:"preview"`
	Links    []jsonLink `json:"links"`
}

func newJSONResult(r monitor.Result) jsonResult {
	links := make([]jsonLink, len(r.Links))
	for i, l := range r.Links {
		links[i] = newJSONLink(l)
	}

	return jsonResult{
		StatusID: r.StatusID,
		URL:      r.URL,
		Instance: r.Instance,
		Account:  r.Account,
		Language: r.Language,
		Preview:  r.Preview,
		Links:    links,
	}
}

func newJSONLink(l linkcheck.Link) jsonLink {
	jl := jsonLink{
		Href:          l.Href,
		Text:          l.Text,
		Status:        l.Status,
		HrefCanonical: l.HrefCanonical,
		HrefClean:     l.HrefClean,
		Probe:         l.Probe.Kind.String(),
	}

	if l.Probe.Err != nil {
		jl.ProbeError = l.Probe.Err.Error()
	}

	return jl
}
