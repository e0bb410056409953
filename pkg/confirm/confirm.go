// Package confirm prompts an operator for yes/no decisions.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer answers a yes/no question on behalf of the operator.
type Confirmer interface {
	// Confirm asks the question and returns the decision. An error means
	// no decision could be obtained, not a negative answer.
	Confirm(question string) (bool, error)
}

// Auto answers every question the same way without prompting. Used when
// the job runs unattended with a fixed cleanup policy.
type Auto bool

func (a Auto) Confirm(string) (bool, error) {
	return bool(a), nil
}

// ReaderConfirmer prompts on Out and reads answers from In. Only "y" and
// "n" (case-insensitive, surrounding whitespace ignored) are accepted;
// anything else re-prompts until input is exhausted.
type ReaderConfirmer struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// NewReaderConfirmer creates a confirmer reading from in and prompting
// on out.
func NewReaderConfirmer(in io.Reader, out io.Writer) *ReaderConfirmer {
	return &ReaderConfirmer{In: in, Out: out}
}

func (r *ReaderConfirmer) Confirm(question string) (bool, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.In)
	}

	for {
		fmt.Fprintf(r.Out, "%s (y/n): ", question)

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return false, fmt.Errorf("failed to read confirmation: %w", err)
			}
			return false, fmt.Errorf("no confirmation received: input closed")
		}

		switch strings.ToLower(strings.TrimSpace(r.scanner.Text())) {
		case "y":
			return true, nil
		case "n":
			return false, nil
		default:
			fmt.Fprintln(r.Out, "Invalid input. Please enter 'y' for yes or 'n' for no.")
		}
	}
}
