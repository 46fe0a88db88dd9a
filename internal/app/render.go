package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"assistdojo/internal/exercise"
)

type Theme struct {
	Prompt lipgloss.Style
	Pass   lipgloss.Style
	Fail   lipgloss.Style
	Accent lipgloss.Style
	Muted  lipgloss.Style
}

func DefaultTheme() Theme {
	amber := lipgloss.Color("#FFC857")
	mint := lipgloss.Color("#67F0A8")
	brick := lipgloss.Color("#FF6F91")
	blue := lipgloss.Color("#5EEBFF")
	muted := lipgloss.Color("#8A9BBF")

	return Theme{
		Prompt: lipgloss.NewStyle().Foreground(blue).Bold(true),
		Pass:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		Fail:   lipgloss.NewStyle().Foreground(brick),
		Accent: lipgloss.NewStyle().Foreground(amber).Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(muted),
	}
}

// Renderer formats tutor output. In plain mode every method returns its input
// unchanged apart from the prompt suffix.
type Renderer struct {
	plain bool
	md    *glamour.TermRenderer
	theme Theme
}

func NewRenderer(mode string) (*Renderer, error) {
	if mode == RenderPlain {
		return &Renderer{plain: true}, nil
	}
	style := glamour.WithAutoStyle()
	if mode == RenderMarkdown {
		style = glamour.WithStandardStyle("dark")
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	return &Renderer{md: md, theme: DefaultTheme()}, nil
}

func (r *Renderer) Markdown(text string) string {
	if r.plain || r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (r *Renderer) Prompt(label string) string {
	if r.plain {
		return label + " > "
	}
	return r.theme.Prompt.Render(label) + " > "
}

func (r *Renderer) Reply(rep exercise.Reply) string {
	if r.plain {
		return rep.Text
	}
	if rep.Err != nil {
		return r.theme.Muted.Render(rep.Text)
	}
	lines := strings.Split(rep.Text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "Step passed"):
			lines[i] = r.theme.Pass.Render(line)
		case strings.HasPrefix(line, "Not yet."):
			lines[i] = r.theme.Fail.Render(line)
		case strings.Contains(line, " complete! "), strings.HasPrefix(line, "Next up: "), strings.HasPrefix(line, "Hint: "):
			lines[i] = r.theme.Accent.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
