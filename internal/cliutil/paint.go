package cliutil

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	goodSprint = color.New(color.FgGreen).SprintFunc()
	badSprint  = color.New(color.FgRed).SprintFunc()
	warnSprint = color.New(color.FgYellow).SprintFunc()
	dimSprint  = color.New(color.Faint).SprintFunc()
)

// Painter colours terminal output. A disabled painter passes text through
// untouched, so piped output stays clean.
type Painter struct {
	enabled bool
}

// NewPainter enables colour only when stdout is a terminal.
func NewPainter() Painter {
	return Painter{enabled: isatty.IsTerminal(os.Stdout.Fd())}
}

// NewPainterEnabled forces the colour decision, for tests and --no-color.
func NewPainterEnabled(enabled bool) Painter {
	return Painter{enabled: enabled}
}

func (p Painter) Good(s string) string {
	if !p.enabled {
		return s
	}
	return goodSprint(s)
}

func (p Painter) Bad(s string) string {
	if !p.enabled {
		return s
	}
	return badSprint(s)
}

func (p Painter) Warn(s string) string {
	if !p.enabled {
		return s
	}
	return warnSprint(s)
}

func (p Painter) Dim(s string) string {
	if !p.enabled {
		return s
	}
	return dimSprint(s)
}

// State paints a liveness word: up in green, anything else in red.
func (p Painter) State(s string) string {
	if s == "up" {
		return p.Good(s)
	}
	return p.Bad(s)
}
