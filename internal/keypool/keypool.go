// Package keypool manages an ordered pool of API credentials and rotates
// between them when the active one runs out of quota.
package keypool

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ActivateFunc is invoked whenever a credential becomes the active one.
// Implementations typically rebuild the API client for the new key. A non-nil
// error marks the credential unusable for the current sweep.
type ActivateFunc func(key string) error

// Pool holds the ordered credential set for one run. It is not safe for
// concurrent use; the pipeline has exactly one mutator.
type Pool struct {
	keys      []string
	active    int
	exhausted map[int]bool
	activate  ActivateFunc
	logger    *slog.Logger
}

// Load reads credentials from a plain text file, one per line. Blank lines
// and lines starting with '#' are ignored.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %s: %w", path, err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("key file %s contains no credentials", path)
	}
	slog.Info("Loaded API credentials.", "keyFile", path, "count", len(keys))
	return keys, nil
}

// New creates a pool and activates the first credential.
func New(keys []string, activate ActivateFunc, logger *slog.Logger) (*Pool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("credential pool cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		keys:      keys,
		exhausted: make(map[int]bool),
		activate:  activate,
		logger:    logger,
	}
	if p.activate != nil {
		if err := p.activate(keys[0]); err != nil {
			return nil, fmt.Errorf("failed to activate initial credential: %w", err)
		}
	}
	return p, nil
}

// Current returns the active credential.
func (p *Pool) Current() string {
	return p.keys[p.active]
}

// Index returns the position of the active credential.
func (p *Pool) Index() int {
	return p.active
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// SetIndex activates the credential at position i. Used when resuming a run
// that recorded which key it was on.
func (p *Pool) SetIndex(i int) error {
	if i < 0 || i >= len(p.keys) {
		return fmt.Errorf("credential index %d out of range [0,%d)", i, len(p.keys))
	}
	if i == p.active {
		return nil
	}
	if p.activate != nil {
		if err := p.activate(p.keys[i]); err != nil {
			return fmt.Errorf("failed to activate credential %d: %w", i, err)
		}
	}
	p.active = i
	return nil
}

// Rotate advances to the next usable credential and activates it. It returns
// ok=false when a full sweep finds no usable credential: the pointer came back
// to the credential that was active when this rotation chain started, or the
// pool holds a single key. The caller may still wait out the quota window and
// retry the current credential; Rotate never sleeps.
func (p *Pool) Rotate() (string, bool) {
	if len(p.keys) == 1 {
		p.logger.Error("All API credentials have hit their quota limit.", "poolSize", 1)
		return p.Current(), false
	}

	origin := p.active
	p.exhausted[origin] = true

	for next := (p.active + 1) % len(p.keys); next != origin; next = (next + 1) % len(p.keys) {
		if p.exhausted[next] {
			continue
		}
		if p.activate != nil {
			if err := p.activate(p.keys[next]); err != nil {
				p.logger.Warn("Credential activation failed, skipping.", "keyIndex", next, "error", err)
				p.exhausted[next] = true
				continue
			}
		}
		p.active = next
		p.logger.Info("Switched to next API credential.", "keyIndex", next)
		return p.keys[next], true
	}

	p.logger.Error("All API credentials have hit their quota limit.", "poolSize", len(p.keys))
	return p.Current(), false
}

// Exhausted reports how many credentials were confirmed over quota this run.
// The set only grows; quota windows clearing mid-run are handled by the
// caller waiting and retrying the current credential.
func (p *Pool) Exhausted() int {
	return len(p.exhausted)
}
