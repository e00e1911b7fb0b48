package styles

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/styledtext"
)

// Renderer formats output for one writer. Color support is detected from
// the writer, so output to a file or buffer is plain text.
type Renderer struct {
	r *lipgloss.Renderer

	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
	text    lipgloss.Style
}

// NewRenderer creates a renderer for w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		r:       r,
		success: r.NewStyle().Foreground(StatusSuccessColor),
		warning: r.NewStyle().Foreground(StatusWarningColor),
		failure: r.NewStyle().Foreground(StatusErrorColor).Bold(true),
		muted:   r.NewStyle().Foreground(TextMutedColor).Italic(true),
		text:    r.NewStyle().Foreground(TextPrimaryColor),
	}
}

// Text renders a styled text value segment by segment.
func (r *Renderer) Text(t styledtext.Text) string {
	var b strings.Builder
	for _, seg := range t.Segments() {
		b.WriteString(r.segmentStyle(seg).Render(seg.Content))
	}
	return b.String()
}

func (r *Renderer) segmentStyle(seg styledtext.Segment) lipgloss.Style {
	s := r.r.NewStyle()
	if seg.Color != 0 {
		s = s.Foreground(LegacyColor(seg.Color))
	}
	return s.
		Bold(seg.Has(styledtext.Bold)).
		Italic(seg.Has(styledtext.Italic)).
		Underline(seg.Has(styledtext.Underlined)).
		Strikethrough(seg.Has(styledtext.Strikethrough)).
		Blink(seg.Has(styledtext.Obfuscated))
}

// Name renders a player name in the tag color.
func (r *Renderer) Name(name string, c domain.Color) string {
	return r.r.NewStyle().Foreground(LegacyColor(c.Code())).Render(name)
}

// ChatLine renders "<prefix><name><suffix>: message". props is nil for a
// player without a tag.
func (r *Renderer) ChatLine(name string, props *domain.Properties, message string) string {
	var b strings.Builder
	if props == nil {
		b.WriteString(r.Name(name, domain.ColorWhite))
	} else {
		if props.Prefix != nil {
			b.WriteString(r.Text(*props.Prefix))
		}
		b.WriteString(r.Name(name, props.Color))
		if props.Suffix != nil {
			b.WriteString(r.Text(*props.Suffix))
		}
	}
	b.WriteString(": ")
	b.WriteString(r.text.Render(message))
	return b.String()
}

// Properties renders a tag summary with a name preview.
func (r *Renderer) Properties(id string, p domain.Properties) string {
	field := func(t *styledtext.Text) string {
		if t == nil {
			return r.muted.Render("none")
		}
		return r.Text(*t) + r.muted.Render(" ("+t.String()+")")
	}
	lines := []string{
		id + "  " + r.ChatLine(id, &p, "..."),
		"  prefix: " + field(p.Prefix),
		"  suffix: " + field(p.Suffix),
		"  color:  " + r.Name(p.Color.String(), p.Color),
	}
	return strings.Join(lines, "\n")
}

// Success renders a committed result.
func (r *Renderer) Success(msg string) string { return r.success.Render(msg) }

// Warning renders a no-op or timeout notice.
func (r *Renderer) Warning(msg string) string { return r.warning.Render(msg) }

// Error renders a failure.
func (r *Renderer) Error(msg string) string { return r.failure.Render(msg) }

// Muted renders a hint.
func (r *Renderer) Muted(msg string) string { return r.muted.Render(msg) }
