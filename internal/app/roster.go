package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// Roster lists the principals seeded into an empty vault, per role.
type Roster struct {
	Full      []string `yaml:"full"`
	Partial   []string `yaml:"partial"`
	Liquidate []string `yaml:"liquidate"`
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("app: read roster: %w", err)
	}
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return Roster{}, fmt.Errorf("app: parse roster %s: %w", path, err)
	}
	roster.Full = cleanList(roster.Full)
	roster.Partial = cleanList(roster.Partial)
	roster.Liquidate = cleanList(roster.Liquidate)
	return roster, nil
}

// Roster merges the env lists with the roster file, file entries last.
func (c *Config) Roster() (Roster, error) {
	roster := Roster{
		Full:      append([]string(nil), c.FullUsers...),
		Partial:   append([]string(nil), c.PartialUsers...),
		Liquidate: append([]string(nil), c.LiquidateUsers...),
	}
	if c.RosterFile == "" {
		return roster, nil
	}
	file, err := LoadRoster(c.RosterFile)
	if err != nil {
		return Roster{}, err
	}
	roster.Full = append(roster.Full, file.Full...)
	roster.Partial = append(roster.Partial, file.Partial...)
	roster.Liquidate = append(roster.Liquidate, file.Liquidate...)
	return roster, nil
}

// Identities converts the roster to vault seed lists.
func (r Roster) Identities() (full, partial, liquidate []vault.Identity) {
	return toIdentities(r.Full), toIdentities(r.Partial), toIdentities(r.Liquidate)
}

func toIdentities(ids []string) []vault.Identity {
	out := make([]vault.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, vault.Identity(id))
	}
	return out
}
