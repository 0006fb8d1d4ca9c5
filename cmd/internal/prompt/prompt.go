package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when a confirmation is needed but stdin is not
// interactive.
var ErrNoTerminal = errors.New("prompt: confirmation required and no terminal available")

// Confirmer asks yes/no questions on an interactive terminal.
type Confirmer struct {
	in          io.Reader
	out         io.Writer
	interactive func() bool
}

// NewConfirmer returns a confirmer reading from stdin and prompting on stderr.
func NewConfirmer() *Confirmer {
	return &Confirmer{
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Confirm prints question and reports whether the operator answered yes.
// Anything other than y or yes is treated as no.
func (c *Confirmer) Confirm(question string) (bool, error) {
	if c.interactive != nil && !c.interactive() {
		return false, ErrNoTerminal
	}
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("prompt: read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
