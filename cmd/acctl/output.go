package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successPrintf = color.New(color.FgGreen).SprintfFunc()
	infoPrintf    = color.New(color.FgCyan).SprintfFunc()
	warnPrintf    = color.New(color.FgYellow).SprintfFunc()
	failPrintf    = color.New(color.FgRed).SprintfFunc()
	headerPrintf  = color.New(color.FgBlue, color.Bold).SprintfFunc()
	dimPrintf     = color.New(color.Faint).SprintfFunc()
)

// printer writes colourised status lines. Colour is disabled by the color
// package when stdout is not a terminal.
type printer struct {
	out io.Writer
	err io.Writer
}

func newPrinter(out, err io.Writer) *printer {
	return &printer{out: out, err: err}
}

func (p *printer) Header(format string, args ...any) {
	fmt.Fprintln(p.out, headerPrintf(format, args...))
}

func (p *printer) Info(format string, args ...any) {
	fmt.Fprintln(p.out, infoPrintf(format, args...))
}

func (p *printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, successPrintf(format, args...))
}

func (p *printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.err, warnPrintf(format, args...))
}

func (p *printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.err, failPrintf("Error: "+format, args...))
}

func (p *printer) Detail(format string, args ...any) {
	fmt.Fprintln(p.out, dimPrintf("  "+format, args...))
}

// Plain writes uncoloured output, for values meant to be copied or piped.
func (p *printer) Plain(s string) {
	fmt.Fprintln(p.out, s)
}
