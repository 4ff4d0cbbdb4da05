// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdiddy/deep-research/internal/requirements"
)

var _ requirements.Asker = (*stdinAsker)(nil)

// stdinAsker asks follow-up questions on a terminal. A single goroutine reads
// lines so an abandoned prompt does not leave competing readers behind.
type stdinAsker struct {
	in   io.Reader
	out  io.Writer
	once sync.Once
	// lines is closed when the input ends.
	lines chan string
}

func newStdinAsker(in io.Reader, out io.Writer) *stdinAsker {
	return &stdinAsker{in: in, out: out, lines: make(chan string)}
}

func (a *stdinAsker) start() {
	go func() {
		defer close(a.lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			a.lines <- strings.TrimSpace(sc.Text())
		}
	}()
}

// Ask prints each question and waits for one line per answer. An empty line
// leaves that question unanswered.
func (a *stdinAsker) Ask(ctx context.Context, questions []string) ([]string, error) {
	a.once.Do(a.start)
	fmt.Fprintln(a.out, "A few details would sharpen the research (press Enter to skip):")
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		fmt.Fprintf(a.out, "  %s\n  > ", q)
		select {
		case line, ok := <-a.lines:
			if !ok {
				return answers, io.EOF
			}
			answers = append(answers, line)
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return answers, ctx.Err()
		}
	}
	return answers, nil
}
