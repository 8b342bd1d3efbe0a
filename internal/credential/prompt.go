package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"snapsync/internal/snap"
)

// Prompter shows the consent URL to the operator and returns what they paste
// back: either the bare authorization code or the full redirect URL.
type Prompter interface {
	Prompt(ctx context.Context, authURL string) (string, error)
}

// TerminalPrompter prompts on a terminal. It refuses to run when in is not a
// terminal, so unattended runs fail instead of hanging.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

var _ Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter creates a TerminalPrompter reading from in and writing to out.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, authURL string) (string, error) {
	if !term.IsTerminal(int(p.in.Fd())) {
		return "", snap.ErrNotInteractive
	}

	fmt.Fprintf(p.out, "Open the following URL in a browser and authorize access:\n\n  %s\n\n", authURL)
	fmt.Fprint(p.out, "Paste the authorization code or the full redirect URL: ")

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		line := strings.TrimSpace(r.line)
		if r.err != nil && (r.err != io.EOF || line == "") {
			return "", fmt.Errorf("reading authorization code: %w", r.err)
		}
		return line, nil
	}
}

// PromptFunc adapts a function to the Prompter interface.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

func (f PromptFunc) Prompt(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}
