package shell

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles はページの装飾。出力先が端末でない場合、lipglossは装飾を付けずに文字列を返す。
type styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Badge  lipgloss.Style
	Label  lipgloss.Style
	Link   lipgloss.Style
	Help   lipgloss.Style
	Error  lipgloss.Style
	Readme lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220")),
		Header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")),
		Badge: r.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("220")).
			Padding(0, 1),
		Label: r.NewStyle().
			Foreground(lipgloss.Color("241")),
		Link: r.NewStyle().
			Foreground(lipgloss.Color("39")),
		Help: r.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true),
		Error: r.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		Readme: r.NewStyle().
			PaddingLeft(2),
	}
}
