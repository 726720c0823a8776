package cli

import (
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"batchmux"
)

// Plan is a caller-keyed set of directory queries loaded from YAML. Each
// query names exactly one operation.
type Plan struct {
	Queries map[string]Query `yaml:"queries"`

	fingerprint uint64
}

// Fingerprint is a digest of the plan file's bytes. It keys run artifacts,
// so identical plan files yield identical trace run IDs.
func (p *Plan) Fingerprint() uint64 { return p.fingerprint }

// Query is one plan entry. Exactly one field must be set.
type Query struct {
	// Lookup resolves a user name to its UID.
	Lookup string `yaml:"lookup,omitempty"`
	// Profile fetches the attributes of a UID directly.
	Profile *int64 `yaml:"profile,omitempty"`
	// Resolve chains a name lookup into a profile fetch.
	Resolve string `yaml:"resolve,omitempty"`
}

func (q Query) task() (batchmux.Task, error) {
	set := 0
	if q.Lookup != "" {
		set++
	}
	if q.Profile != nil {
		set++
	}
	if q.Resolve != "" {
		set++
	}
	if set != 1 {
		return nil, errors.Errorf("exactly one of lookup, profile, resolve must be set, got %d", set)
	}
	switch {
	case q.Lookup != "":
		return LookupTask{Name: q.Lookup}, nil
	case q.Profile != nil:
		return FetchProfileTask{UID: *q.Profile}, nil
	default:
		return ResolveProfile(q.Resolve), nil
	}
}

// LoadPlan reads and validates a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading plan")
	}
	var p Plan
	if err := yaml.UnmarshalStrict(raw, &p); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	if len(p.Queries) == 0 {
		return nil, errors.New("plan has no queries")
	}
	p.fingerprint = xxhash.Sum64(raw)
	return &p, nil
}

// BuildMulti converts the plan into a MultiTask. Queries are added in sorted
// caller-key order so staging, and with it the trace, is deterministic for a
// given plan file.
func (p *Plan) BuildMulti() (*batchmux.MultiTask, error) {
	keys := make([]string, 0, len(p.Queries))
	for key := range p.Queries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	m := batchmux.Multi()
	for _, key := range keys {
		t, err := p.Queries[key].task()
		if err != nil {
			return nil, errors.Wrapf(err, "query %q", key)
		}
		if err := m.Add(key, t); err != nil {
			return nil, errors.Wrapf(err, "query %q", key)
		}
	}
	return m, nil
}
