package tui

import (
	"strings"
	"testing"
)

func marksOf(cells []cell) []mark {
	out := make([]mark, len(cells))
	for i, c := range cells {
		out[i] = c.mark
	}
	return out
}

func TestPromptCellsTintByPressGap(t *testing.T) {
	cells := promptCells([]rune("abcde"), []rune("abcd"), []float64{0, 120, 700, 2500}, 4)
	want := []mark{markSteady, markSteady, markHesitant, markPause, markCurrent}
	for i, m := range marksOf(cells) {
		if m != want[i] {
			t.Fatalf("cell %d: expected mark %d, got %d", i, want[i], m)
		}
	}
	if !cells[4].cursor {
		t.Fatalf("expected cursor on first untyped rune")
	}
	for i := 0; i < 4; i++ {
		if cells[i].cursor {
			t.Fatalf("unexpected cursor on typed rune %d", i)
		}
	}
}

func TestGapMarkBoundaries(t *testing.T) {
	cases := map[float64]mark{
		0:    markSteady,
		499:  markSteady,
		500:  markHesitant,
		2000: markHesitant,
		2001: markPause,
	}
	for gap, want := range cases {
		if got := gapMark(gap); got != want {
			t.Fatalf("gap %v: expected mark %d, got %d", gap, want, got)
		}
	}
}

func TestPromptCellsMissingGapIsSteady(t *testing.T) {
	cells := promptCells([]rune("ab"), []rune("ab"), nil, -1)
	if cells[0].mark != markSteady || cells[1].mark != markSteady {
		t.Fatalf("expected steady marks without gaps, got %v", marksOf(cells))
	}
	for _, c := range cells {
		if c.cursor {
			t.Fatalf("expected no cursor on a completed prompt")
		}
	}
}

func TestPromptCellsCurrentWord(t *testing.T) {
	cells := promptCells([]rune("one two"), []rune("o"), []float64{0}, 1)
	want := []mark{markSteady, markCurrent, markCurrent, markPending, markPending, markPending, markPending}
	for i, m := range marksOf(cells) {
		if m != want[i] {
			t.Fatalf("cell %d: expected mark %d, got %d", i, want[i], m)
		}
	}
}

func TestPromptCellsMistypeKeepsTarget(t *testing.T) {
	cells := promptCells([]rune("a b"), []rune("ax"), []float64{0, 90}, 2)
	if cells[1].mark != markWrong {
		t.Fatalf("expected wrong mark, got %d", cells[1].mark)
	}
	if cells[1].text != markStyles[markWrong].Render(string(wrongSpaceRune)) {
		t.Fatalf("expected dot for a mistyped space, got %q", cells[1].text)
	}
	cells = promptCells([]rune("ab"), []rune("ax"), []float64{0, 90}, -1)
	if cells[1].text != markStyles[markWrong].Render("b") {
		t.Fatalf("expected target rune kept on mistype, got %q", cells[1].text)
	}
}

func plainCells(s string) []cell {
	out := make([]cell, 0, len(s))
	for _, r := range s {
		out = append(out, cell{text: string(r), width: 1, space: r == ' '})
	}
	return out
}

func TestLayoutMovesWholeWords(t *testing.T) {
	got := layout(plainCells("ab cd ef"), 5)
	if got != "ab cd\nef" {
		t.Fatalf("unexpected layout %q", got)
	}
}

func TestLayoutDropsOverflowingSpace(t *testing.T) {
	got := layout(plainCells("abc def"), 3)
	if got != "abc\ndef" {
		t.Fatalf("unexpected layout %q", got)
	}
}

func TestLayoutSplitsLongWords(t *testing.T) {
	got := layout(plainCells("abcdefg hi"), 3)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 3 {
			t.Fatalf("line %q wider than 3 in %q", line, got)
		}
	}
	if strings.ReplaceAll(got, "\n", "") != "abcdefg hi" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestLayoutWithoutWidth(t *testing.T) {
	if got := layout(plainCells("ab cd"), 0); got != "ab cd" {
		t.Fatalf("unexpected layout %q", got)
	}
}
