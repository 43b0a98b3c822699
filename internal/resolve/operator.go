package resolve

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// StdinOperator waits for a line on its reader, typically os.Stdin.
type StdinOperator struct {
	in  io.Reader
	out io.Writer
}

func NewStdinOperator(in io.Reader, out io.Writer) *StdinOperator {
	return &StdinOperator{in: in, out: out}
}

func (o *StdinOperator) AwaitCompletion(ctx context.Context, p Prompt) error {
	fmt.Fprintf(o.out, "\nClose the administration tool after saving %s (or %s), then press Enter to continue.\n",
		p.DefaultOutput, p.Output)

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(o.in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// NonInteractiveOperator never waits: without an operator a manual merge
// cannot complete.
type NonInteractiveOperator struct{}

func (NonInteractiveOperator) AwaitCompletion(_ context.Context, p Prompt) error {
	return errors.Wrapf(errors.ErrManualMergeIncomplete,
		"conflicts need a manual merge but the session is non-interactive; staged copies left at %s", p.Current)
}
