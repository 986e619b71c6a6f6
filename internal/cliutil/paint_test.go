package cliutil

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestPainterDisabledPassesThrough(t *testing.T) {
	p := NewPainterEnabled(false)
	for _, fn := range []func(string) string{p.Good, p.Bad, p.Warn, p.Dim, p.State} {
		if got := fn("text"); got != "text" {
			t.Fatalf("disabled painter altered output: %q", got)
		}
	}
}

func TestPainterEnabledColours(t *testing.T) {
	old := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = old })

	p := NewPainterEnabled(true)
	if got := p.Good("up"); !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected escape codes, got %q", got)
	}
	if p.State("up") != p.Good("up") {
		t.Fatal("state up should paint green")
	}
	if p.State("down") != p.Bad("down") {
		t.Fatal("state down should paint red")
	}
}
