package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// Ledger records which targets a finishing branch has already been merged
// into, so a re-run after a partial finish skips them. Published lists the
// merged targets whose push and tag also went through.
type Ledger struct {
	Repository string    `yaml:"repository"`
	Branch     string    `yaml:"branch"`
	Merged     []string  `yaml:"merged"`
	Published  []string  `yaml:"published,omitempty"`
	UpdatedAt  time.Time `yaml:"updatedAt"`

	path string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func ledgerPath(stateDir, repository, branch string) string {
	sum := sha256.Sum256([]byte(repository))
	name := unsafeChars.ReplaceAllString(branch, "_") + "-" + hex.EncodeToString(sum[:4]) + ".yaml"
	return filepath.Join(stateDir, name)
}

// LoadLedger reads the ledger for branch in repository, returning an empty
// one when none was written yet.
func LoadLedger(stateDir, repository, branch string) (*Ledger, error) {
	l := &Ledger{
		Repository: repository,
		Branch:     branch,
		path:       ledgerPath(stateDir, repository, branch),
	}

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return l, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading finish ledger %s", l.path)
	}

	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, errors.Wrapf(err, "parsing finish ledger %s", l.path)
	}
	return l, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) IsMerged(target string) bool {
	return lo.Contains(l.Merged, target)
}

// Outstanding returns the targets not yet merged, in order.
func (l *Ledger) Outstanding(targets []string) []string {
	return lo.Reject(targets, func(t string, _ int) bool { return l.IsMerged(t) })
}

func (l *Ledger) IsPublished(target string) bool {
	return lo.Contains(l.Published, target)
}

// MarkMerged records target and persists the ledger.
func (l *Ledger) MarkMerged(target string) error {
	l.Merged = lo.Uniq(append(l.Merged, target))
	return l.save()
}

// MarkPublished records that the follow-up steps for target succeeded.
func (l *Ledger) MarkPublished(target string) error {
	l.Published = lo.Uniq(append(l.Published, target))
	return l.save()
}

func (l *Ledger) save() error {
	l.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(err, "creating state directory")
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing finish ledger %s", l.path)
	}
	return nil
}

// Remove deletes the ledger once its branch is gone.
func (l *Ledger) Remove() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
