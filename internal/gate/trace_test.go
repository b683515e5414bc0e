package gate

import (
	"fmt"
	"strings"
	"testing"
)

func TestFilterTrace_RemovesIgnoredLines(t *testing.T) {
	got := FilterTrace("A: x\nB: y\nC: z", []string{"B:"}, 10)
	if got != "A: x\nC: z" {
		t.Errorf("expected %q, got %q", "A: x\nC: z", got)
	}
}

func TestFilterTrace_AnyPrefixMatches(t *testing.T) {
	trace := "UnityEngine.Debug:LogError\nGame.Player:Update\nKogane.ErrorSender:Send\nGame.Enemy:Tick"
	got := FilterTrace(trace, []string{"UnityEngine.", "Kogane."}, 10)
	if got != "Game.Player:Update\nGame.Enemy:Tick" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestFilterTrace_PrefixNotSubstring(t *testing.T) {
	got := FilterTrace("at B: y\nB: y", []string{"B:"}, 10)
	if got != "at B: y" {
		t.Errorf("only lines starting with the prefix should be removed, got %q", got)
	}
}

func TestFilterTrace_TruncatesAfterFiltering(t *testing.T) {
	got := FilterTrace("skip\n1\nskip\n2\n3", []string{"skip"}, 2)
	if got != "1\n2" {
		t.Errorf("expected first 2 surviving lines, got %q", got)
	}
}

func TestFilterTrace_KeepsFirstNInOrder(t *testing.T) {
	lines := make([]string, 15)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %02d", i)
	}
	got := FilterTrace(strings.Join(lines, "\n"), nil, 10)
	want := strings.Join(lines[:10], "\n")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFilterTrace_NonPositiveMaxKeepsNothing(t *testing.T) {
	for _, n := range []int{0, -1} {
		if got := FilterTrace("a\nb", nil, n); got != "" {
			t.Errorf("maxLines=%d: expected empty, got %q", n, got)
		}
	}
}

func TestFilterTrace_TrimsTrailingWhitespace(t *testing.T) {
	got := FilterTrace("a\nb\n\n  \n", nil, 10)
	if got != "a\nb" {
		t.Errorf("expected trailing blank lines trimmed, got %q", got)
	}
}

func TestFilterTrace_KeepsLeadingWhitespace(t *testing.T) {
	got := FilterTrace("  at A\n\tat B", nil, 10)
	if got != "  at A\n\tat B" {
		t.Errorf("leading whitespace should survive, got %q", got)
	}
}

func TestFilterTrace_CarriageReturnsTrimmedOnlyAtEnd(t *testing.T) {
	got := FilterTrace("a\r\nb\r\n", nil, 10)
	if got != "a\r\nb" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestFilterTrace_Empty(t *testing.T) {
	if got := FilterTrace("", []string{"x"}, 10); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestFilterTrace_EmptyPrefixDropsEverything(t *testing.T) {
	if got := FilterTrace("a\nb", []string{""}, 10); got != "" {
		t.Errorf("empty prefix matches every line, got %q", got)
	}
}
