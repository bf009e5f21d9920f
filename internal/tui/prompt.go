package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/keyprofile/internal/recorder"
	"github.com/verte-zerg/keyprofile/internal/stats"
)

// wrongSpaceRune replaces a prompt space that was typed as something else.
const wrongSpaceRune = '•'

// mark is how one prompt rune is shown.
type mark int

const (
	markPending mark = iota
	markCurrent
	markSteady
	markHesitant
	markPause
	markWrong
)

var markStyles = map[mark]lipgloss.Style{
	markPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
	markCurrent:  lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
	markSteady:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")),
	markHesitant: lipgloss.NewStyle().Foreground(lipgloss.Color("#7FA7D9")),
	markPause:    lipgloss.NewStyle().Foreground(lipgloss.Color("#4F6B8F")).Italic(true),
	markWrong:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
}

// gapMark classifies the press gap that produced a correctly typed rune.
// Bands follow the session speed categories; gaps long enough to count as a
// pause get their own band.
func gapMark(gapMs float64) mark {
	switch {
	case gapMs > recorder.PauseGapMs:
		return markPause
	case gapMs >= stats.ModerateGapMs:
		return markHesitant
	default:
		return markSteady
	}
}

type cell struct {
	text   string
	width  int
	space  bool
	mark   mark
	cursor bool
}

type span struct{ start, end int }

// promptCells renders every prompt rune. gaps[i] is the press gap in ms
// that produced typed[i]; a cursor below zero means the prompt is complete.
func promptCells(target, typed []rune, gaps []float64, cursor int) []cell {
	word, hasWord := wordAt(target, cursor)
	cells := make([]cell, len(target))
	for i, r := range target {
		shown := r
		c := cell{space: r == ' ', cursor: i == cursor}
		switch {
		case i < len(typed) && typed[i] != r:
			c.mark = markWrong
			if c.space {
				shown = wrongSpaceRune
			}
		case i < len(typed):
			var gap float64
			if i < len(gaps) {
				gap = gaps[i]
			}
			c.mark = gapMark(gap)
		case hasWord && !c.space && i >= word.start && i < word.end:
			c.mark = markCurrent
		default:
			c.mark = markPending
		}
		style := markStyles[c.mark]
		if c.cursor {
			style = style.Underline(true)
		}
		c.text = style.Render(string(shown))
		c.width = runewidth.RuneWidth(shown)
		cells[i] = c
	}
	return cells
}

// wordAt returns the word holding the cursor, or the next word after it.
func wordAt(target []rune, cursor int) (span, bool) {
	words := wordSpans(target)
	if len(words) == 0 {
		return span{}, false
	}
	if cursor < 0 {
		return words[0], true
	}
	for _, w := range words {
		if cursor < w.end {
			return w, true
		}
	}
	return words[len(words)-1], true
}

func wordSpans(target []rune) []span {
	var out []span
	start := -1
	for i, r := range target {
		switch {
		case r != ' ' && start < 0:
			start = i
		case r == ' ' && start >= 0:
			out = append(out, span{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(target)})
	}
	return out
}

// piece is a word followed by the spaces after it.
type piece struct {
	body []cell
	gap  []cell
}

func splitPieces(cells []cell) []piece {
	var out []piece
	var cur piece
	for _, c := range cells {
		if !c.space && len(cur.gap) > 0 {
			out = append(out, cur)
			cur = piece{}
		}
		if c.space {
			cur.gap = append(cur.gap, c)
		} else {
			cur.body = append(cur.body, c)
		}
	}
	if len(cur.body)+len(cur.gap) > 0 {
		out = append(out, cur)
	}
	return out
}

// layout joins cells into lines at most width columns wide, moving whole
// words to the next line. Words wider than a line are split, and a space
// that would overflow is dropped at the break. width <= 0 disables
// wrapping.
func layout(cells []cell, width int) string {
	var b strings.Builder
	if width <= 0 {
		for _, c := range cells {
			b.WriteString(c.text)
		}
		return b.String()
	}
	col := 0
	newline := func() {
		b.WriteByte('\n')
		col = 0
	}
	for _, p := range splitPieces(cells) {
		if col > 0 && col+widthOf(p.body) > width {
			newline()
		}
		for _, c := range p.body {
			if col > 0 && col+c.width > width {
				newline()
			}
			b.WriteString(c.text)
			col += c.width
		}
		for _, c := range p.gap {
			if col+c.width > width {
				newline()
				continue
			}
			b.WriteString(c.text)
			col += c.width
		}
	}
	return b.String()
}

func widthOf(cells []cell) int {
	w := 0
	for _, c := range cells {
		w += c.width
	}
	return w
}
