// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() (string, error) {
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	return string(pw), err
}

// prompter reads interactive input for the journey loop.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// hidden reads without echo; stdin must be a terminal.
	hidden bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:     bufio.NewReader(in),
		out:    out,
		hidden: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// line prompts and reads one line, trimmed.
func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret prompts and reads without echo when attached to a terminal,
// falling back to a plain line read otherwise (pipes, tests).
func (p *prompter) secret(prompt string) (string, error) {
	if !p.hidden {
		return p.line(prompt)
	}
	fmt.Fprintf(p.out, "%s: ", prompt)
	pw, err := readPassword()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pw), nil
}

// confirm asks a yes/no question, defaulting to yes.
func (p *prompter) confirm(prompt string) (bool, error) {
	answer, err := p.line(prompt + " [Y/n]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes", nil
}
