// Package config loads benchmark workload files.
//
// Files ending in .yaml or .yml are parsed as YAML; .json, .jsonc and
// .hujson files may carry comments and trailing commas.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var (
	errUnknownFormat = errors.New("unknown config format")
	errInvalid       = errors.New("invalid workload")
)

// Arena kinds and policy names accepted by Validate.
var (
	Arenas   = []string{"dense", "sparse", "freelist", "sorted"}
	Policies = []string{"noevict", "lru", "twoq", "refdrop", "hybrid"}
)

// Duration wraps time.Duration for YAML and JSON unmarshaling from strings
// such as "10ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Workload describes one benchmark run.
type Workload struct {
	Arena    string   `yaml:"arena" json:"arena"`       // arena kind for the churn phase
	Ops      int      `yaml:"ops" json:"ops"`           // operations per worker
	Workers  int      `yaml:"workers" json:"workers"`   // concurrent cache workers
	Policy   string   `yaml:"policy" json:"policy"`     // eviction policy name
	Capacity int      `yaml:"capacity" json:"capacity"` // lru/twoq capacity
	Lifetime uint32   `yaml:"lifetime" json:"lifetime"` // hybrid lifetime in flushes
	Shards   int      `yaml:"shards" json:"shards"`
	Keys     int      `yaml:"keys" json:"keys"`         // keyspace size
	ReadPct  int      `yaml:"read_pct" json:"read_pct"` // share of reads in the mix
	Flush    Duration `yaml:"flush" json:"flush"`       // maintenance interval
}

// Default returns the workload used when no file is given.
func Default() Workload {
	return Workload{
		Arena:    "dense",
		Ops:      100_000,
		Workers:  4,
		Policy:   "lru",
		Capacity: 4096,
		Lifetime: 8,
		Shards:   1,
		Keys:     16_384,
		ReadPct:  80,
		Flush:    Duration(10 * time.Millisecond),
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("reading workload: %w", err)
	}
	w, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Workload{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes data in the format named by ext over Default.
func Parse(ext string, data []byte) (Workload, error) {
	w := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &w); err != nil {
			return Workload{}, fmt.Errorf("parsing YAML: %w", err)
		}
	case ".json", ".jsonc", ".hujson":
		std, err := hujson.Standardize(data)
		if err != nil {
			return Workload{}, fmt.Errorf("invalid JSONC: %w", err)
		}
		if err := json.Unmarshal(std, &w); err != nil {
			return Workload{}, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return Workload{}, fmt.Errorf("%w: %q", errUnknownFormat, ext)
	}
	return w, w.Validate()
}

// Validate checks ranges and names.
func (w Workload) Validate() error {
	var errs []error
	if !slices.Contains(Arenas, w.Arena) {
		errs = append(errs, fmt.Errorf("%w: arena %q", errInvalid, w.Arena))
	}
	if !slices.Contains(Policies, w.Policy) {
		errs = append(errs, fmt.Errorf("%w: policy %q", errInvalid, w.Policy))
	}
	if w.Ops <= 0 || w.Workers <= 0 || w.Keys <= 0 {
		errs = append(errs, fmt.Errorf("%w: ops, workers and keys must be positive", errInvalid))
	}
	if w.ReadPct < 0 || w.ReadPct > 100 {
		errs = append(errs, fmt.Errorf("%w: read_pct %d", errInvalid, w.ReadPct))
	}
	if w.Flush <= 0 {
		errs = append(errs, fmt.Errorf("%w: flush must be positive", errInvalid))
	}
	return errors.Join(errs...)
}
