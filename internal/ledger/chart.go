package ledger

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type chartFile struct {
	Accounts []chartEntry `yaml:"accounts"`
}

type chartEntry struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Debit     bool   `yaml:"debit"`
	Parent    string `yaml:"parent"`
	Liquidity bool   `yaml:"liquidity"`
}

// ReadChart parses a chart-of-accounts YAML document:
//
//	accounts:
//	  - code: "1100"
//	    name: Current assets
//	    debit: true
//	  - code: "1170"
//	    name: Trade receivables
//	    debit: true
//	    parent: "1100"
//
// Root codes are resolved by walking parents declared in the same document.
// A parent missing from the document is taken as the root.
func ReadChart(r io.Reader) ([]Account, error) {
	var doc chartFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parse chart: %v", ErrInvalidInput, err)
	}

	byCode := make(map[string]chartEntry, len(doc.Accounts))
	for i, e := range doc.Accounts {
		if e.Code == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: chart entry %d: code and name required", ErrInvalidInput, i+1)
		}
		if _, dup := byCode[e.Code]; dup {
			return nil, fmt.Errorf("%w: chart entry %d: duplicate code %s", ErrInvalidInput, i+1, e.Code)
		}
		byCode[e.Code] = e
	}

	accounts := make([]Account, 0, len(doc.Accounts))
	for _, e := range doc.Accounts {
		root, err := chartRoot(byCode, e)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, Account{
			Code:        e.Code,
			Name:        e.Name,
			DebitNormal: e.Debit,
			ParentCode:  e.Parent,
			RootCode:    root,
			Liquidity:   e.Liquidity,
		})
	}
	return accounts, nil
}

func chartRoot(byCode map[string]chartEntry, e chartEntry) (string, error) {
	if e.Parent == "" {
		return "", nil
	}
	seen := map[string]struct{}{e.Code: {}}
	current := e.Parent
	for {
		if _, loop := seen[current]; loop {
			return "", fmt.Errorf("%w: chart cycle through %s", ErrInvalidInput, current)
		}
		seen[current] = struct{}{}
		parent, ok := byCode[current]
		if !ok || parent.Parent == "" {
			return current, nil
		}
		current = parent.Parent
	}
}
