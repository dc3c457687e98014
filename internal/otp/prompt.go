// Package otp supplies the one-time login code: typed by the operator on
// stdin, or read from the mailbox the site sends it to.
package otp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompt asks the operator for the code, one line per attempt. It blocks
// until a line arrives.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

func (p *Prompt) Code(ctx context.Context, attempt int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if attempt > 1 {
		fmt.Fprintf(p.out, "Code rejected (attempt %d). ", attempt)
	}
	fmt.Fprint(p.out, "Enter OTP: ")

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("input closed before an OTP was entered")
		}
		return "", fmt.Errorf("reading OTP: %w", err)
	}
	return strings.TrimSpace(line), nil
}
