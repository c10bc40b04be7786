package main

import (
	"fmt"
	"io"
	"os"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/mattn/go-isatty"
)

const renderWidth = 100

// printMarkdown renders md for a terminal and writes it unchanged elsewhere.
func printMarkdown(w io.Writer, md string) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		_, _ = w.Write(markdown.Render(md, renderWidth, 2))
		return
	}
	fmt.Fprint(w, md)
}
