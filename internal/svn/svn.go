// Package svn is the centralized backend. Branches are URLs; merges happen in
// temporary working copies checked out from the target URL.
package svn

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

type Client struct {
	Bin string

	runner vcs.Runner
}

type Option func(*Client)

func WithRunner(runner vcs.Runner) Option {
	return func(c *Client) { c.runner = runner }
}

func New(bin string, opts ...Option) *Client {
	c := &Client{Bin: bin, runner: vcs.NewExecRunner()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, args ...string) vcs.Result {
	return c.runner.Run(ctx, vcs.Command{
		Name: c.Bin,
		Args: append([]string{"--non-interactive"}, args...),
	})
}

func (c *Client) exec(ctx context.Context, operation string, args ...string) (vcs.Result, error) {
	res := c.run(ctx, args...)
	if err := res.AsError("svn", operation, args); err != nil {
		return res, err
	}
	return res, nil
}

// Checkout checks url out into wc, replacing anything already at wc.
func (c *Client) Checkout(ctx context.Context, url, wc string) error {
	if err := os.RemoveAll(wc); err != nil {
		return errors.Wrapf(err, "removing stale working copy %s", wc)
	}

	res, err := c.exec(ctx, "checkout", "checkout", url, wc)
	if err != nil {
		return err
	}
	if !strings.Contains(res.Output, "Checked out revision") {
		return errors.NewBackendError("svn", "checkout", []string{url, wc}, res.Combined(), fmt.Errorf("no revision reported"))
	}
	return nil
}

var missingTarget = regexp.MustCompile(`E170000|W170000|E160013|non-existent|path not found`)

// Exists probes url with `svn info`.
func (c *Client) Exists(ctx context.Context, url string) (bool, error) {
	res := c.run(ctx, "info", url)
	if res.OK() {
		return true, nil
	}
	if missingTarget.MatchString(res.Combined()) {
		return false, nil
	}
	return false, res.AsError("svn", "info", []string{url})
}

// Copy creates dst as a server-side copy of src. It refuses to copy onto an
// existing URL.
func (c *Client) Copy(ctx context.Context, src, dst, message string) (int, error) {
	exists, err := c.Exists(ctx, dst)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, errors.Validationf("destination %s already exists in the repository", dst)
	}

	if message == "" {
		message = "Branch from " + src
	}

	args := []string{"copy", src, dst, "-m", message}
	res, err := c.exec(ctx, "copy", args...)
	if err != nil {
		return 0, err
	}

	rev, ok := CommittedRevision(res.Output)
	if !ok {
		return 0, errors.NewBackendError("svn", "copy", args, res.Combined(), fmt.Errorf("no committed revision reported"))
	}
	return rev, nil
}

// Merge merges src into the working copy wc, postponing every conflict. With
// reintegrate set it performs a reintegration merge, otherwise a sync merge.
// The merge output is returned for conflict parsing.
func (c *Client) Merge(ctx context.Context, src, wc string, reintegrate bool) (string, error) {
	args := []string{"merge"}
	if reintegrate {
		args = append(args, "--reintegrate")
	}
	args = append(args, "--accept", "postpone", src, wc)

	if _, err := os.Stat(wc); err != nil {
		return "", errors.Wrapf(err, "target working copy %s", wc)
	}

	res, err := c.exec(ctx, "merge", args...)
	if err != nil {
		return "", err
	}

	log.From(ctx).Debug("merge output", zap.String("output", res.Output))
	return res.Output, nil
}

var committedRevision = regexp.MustCompile(`Committed revision (\d+)\.`)

// CommittedRevision extracts N from "Committed revision N." in svn output.
func CommittedRevision(output string) (int, bool) {
	m := committedRevision.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	rev, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return rev, true
}

// Commit commits the working copy. A commit with nothing to send produces no
// output and is reported as revision 0 without error.
func (c *Client) Commit(ctx context.Context, wc, message string) (int, error) {
	args := []string{"commit", "-m", message, wc}
	res, err := c.exec(ctx, "commit", args...)
	if err != nil {
		return 0, err
	}

	if strings.TrimSpace(res.Output) == "" {
		log.From(ctx).Info("Nothing to commit.")
		return 0, nil
	}

	rev, ok := CommittedRevision(res.Output)
	if !ok {
		return 0, errors.NewBackendError("svn", "commit", args, res.Combined(), fmt.Errorf("no committed revision reported"))
	}
	log.From(ctx).Successf("Commit successful: revision %d", rev)
	return rev, nil
}

// Resolve marks path as resolved with its working file content.
func (c *Client) Resolve(ctx context.Context, path string) error {
	_, err := c.exec(ctx, "resolve", "resolve", "--accept", "working", path)
	return err
}

// Delete removes url from the repository.
func (c *Client) Delete(ctx context.Context, url, message string) error {
	_, err := c.exec(ctx, "delete", "delete", url, "-m", message)
	return err
}

// List returns the entry names directly under url, without trailing slashes.
func (c *Client) List(ctx context.Context, url string) ([]string, error) {
	res, err := c.exec(ctx, "list", "list", url)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(strings.ReplaceAll(res.Output, "\r", ""), "\n") {
		name := strings.TrimSuffix(strings.TrimSpace(line), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
