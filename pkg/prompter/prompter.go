package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when hidden input is requested without a tty.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// Prompter reads answers line by line from in and writes prompts to out.
// It is not safe for concurrent use.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

// New returns a prompter over in and out.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
	}
	return p
}

// Stdio returns a prompter over the process's stdin and stdout.
func Stdio() *Prompter {
	return New(os.Stdin, os.Stdout)
}

// IsTerminal reports whether input comes from an interactive terminal.
func (p *Prompter) IsTerminal() bool {
	return p.fd >= 0 && term.IsTerminal(p.fd)
}

// ReadLine reads one line without printing a prompt. io.EOF is returned
// once input is exhausted and nothing was read.
func (p *Prompter) ReadLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Ask prints label without reading. Pair it with Lines when another
// goroutine owns the input.
func (p *Prompter) Ask(label string) {
	fmt.Fprint(p.out, label)
}

// PromptString prompts user for a string input
func (p *Prompter) PromptString(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptPassword reads a token without echoing it.
func (p *Prompter) PromptPassword(label string) (string, error) {
	if !p.IsTerminal() {
		return "", ErrNotTerminal
	}
	fmt.Fprint(p.out, label)

	b, err := term.ReadPassword(p.fd)
	if err != nil {
		return "", err
	}

	fmt.Fprintln(p.out)
	return string(b), nil
}

// PromptConfirm prompts user for yes/no confirmation
func (p *Prompter) PromptConfirm(label string) (bool, error) {
	answer, err := p.PromptString(label + " (y/n) ")
	if err != nil {
		return false, err
	}

	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// PromptSelect prompts user to select from options
func (p *Prompter) PromptSelect(label string, options []string) (int, error) {
	fmt.Fprintln(p.out, label)
	for i, opt := range options {
		fmt.Fprintf(p.out, "%d) %s\n", i+1, opt)
	}

	input, err := p.PromptString("Select option: ")
	if err != nil {
		return -1, err
	}

	var selection int
	if _, err := fmt.Sscanf(input, "%d", &selection); err != nil {
		return -1, err
	}
	if selection < 1 || selection > len(options) {
		return -1, fmt.Errorf("invalid selection")
	}

	return selection - 1, nil
}

// Lines streams input lines into the returned channel until input ends or
// done is closed. The channel is closed afterwards.
func (p *Prompter) Lines(done <-chan struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			line, err := p.ReadLine()
			if err != nil {
				return
			}
			select {
			case out <- line:
			case <-done:
				return
			}
		}
	}()
	return out
}
