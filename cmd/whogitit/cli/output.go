package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// renderer is the narrow output interface every blame/export/show format
// implements, selected at the call site by a --format flag.
type renderer interface {
	Render(w io.Writer) error
}

// outputWithPager writes content directly, or through $PAGER (falling back
// to "less") when w is a terminal and content is taller than the terminal.
func outputWithPager(w io.Writer, content string) {
	f, ok := w.(*os.File)
	if !ok || f != os.Stdout || !term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, content)
		return
	}

	_, height, err := term.GetSize(int(f.Fd()))
	if err != nil {
		height = 24
	}
	if strings.Count(content, "\n") <= height-2 {
		fmt.Fprint(w, content)
		return
	}

	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	cmd := exec.CommandContext(context.Background(), pager) //nolint:gosec // pager from env is expected
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = f
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprint(w, content)
	}
}
