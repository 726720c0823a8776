package cli

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Dataset is the in-memory directory the CLI serves queries against: a name
// to UID index plus per-UID profile attributes.
type Dataset struct {
	Users    map[string]int64            `yaml:"users"`
	Profiles map[int64]map[string]string `yaml:"profiles"`
}

// LoadDataset reads and validates a YAML dataset file. Unknown fields are
// rejected so typos fail loudly instead of yielding empty lookups.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading dataset")
	}
	var ds Dataset
	if err := yaml.UnmarshalStrict(raw, &ds); err != nil {
		return nil, errors.Wrap(err, "parsing dataset")
	}
	if err := ds.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid dataset")
	}
	return &ds, nil
}

func (ds *Dataset) validate() error {
	for name, uid := range ds.Users {
		if name == "" {
			return errors.New("user name must not be empty")
		}
		if uid <= 0 {
			return errors.Errorf("user %q: uid must be > 0, got %d", name, uid)
		}
	}
	for uid := range ds.Profiles {
		if uid <= 0 {
			return errors.Errorf("profile uid must be > 0, got %d", uid)
		}
	}
	return nil
}

// UserNames returns the known user names in sorted order.
func (ds *Dataset) UserNames() []string {
	names := make([]string, 0, len(ds.Users))
	for name := range ds.Users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
