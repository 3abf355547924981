package commission

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed banks.yaml
var defaultBanks []byte

type bankEntry struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
	Model Model  `yaml:"model"`
}

// BankTable maps a bank code to its label and default commission model.
type BankTable struct {
	entries map[string]bankEntry
}

func ParseBankTable(raw []byte) (*BankTable, error) {
	var doc struct {
		Banks []bankEntry `yaml:"banks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse bank table: %w", err)
	}
	if len(doc.Banks) == 0 {
		return nil, fmt.Errorf("parse bank table: no banks defined")
	}

	t := &BankTable{entries: make(map[string]bankEntry, len(doc.Banks))}
	for _, b := range doc.Banks {
		if b.Code == "" {
			return nil, fmt.Errorf("parse bank table: entry without code")
		}
		if !b.Model.Valid() {
			return nil, fmt.Errorf("parse bank table: bank %s has unknown model %q", b.Code, b.Model)
		}
		if _, dup := t.entries[b.Code]; dup {
			return nil, fmt.Errorf("parse bank table: duplicate bank %s", b.Code)
		}
		t.entries[b.Code] = b
	}
	return t, nil
}

// LoadBankTable reads path, or the built-in table when path is empty.
func LoadBankTable(path string) (*BankTable, error) {
	if path == "" {
		return ParseBankTable(defaultBanks)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank table: %w", err)
	}
	return ParseBankTable(raw)
}

func DefaultBankTable() *BankTable {
	t, err := ParseBankTable(defaultBanks)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *BankTable) ModelFor(code string) (Model, bool) {
	b, ok := t.entries[code]
	return b.Model, ok
}

func (t *BankTable) Label(code string) string {
	if b, ok := t.entries[code]; ok && b.Label != "" {
		return b.Label
	}
	return code
}

func (t *BankTable) Codes() []string {
	codes := make([]string, 0, len(t.entries))
	for code := range t.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
