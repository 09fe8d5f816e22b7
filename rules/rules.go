// Package rules loads the account blocklist and tracking parameter filters
// from a YAML file.
//
//	blocklist:
//	  - spammer@example.social
//	filters:
//	  domains:
//	    example.com: [ref_id, campaign]
//	  default: [trk]
//	  replace_defaults: false
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/mycok/mastolinks/linkcheck"
)

// Rules is the loaded configuration. It is never mutated after Load returns.
type Rules struct {
	Blocklist []string
	Filters   linkcheck.FilterTable
}

type document struct {
	Blocklist []string `yaml:"blocklist"`
	Filters   struct {
		Domains         map[string][]string `yaml:"domains"`
		Default         []string            `yaml:"default"`
		ReplaceDefaults bool                `yaml:"replace_defaults"`
	} `yaml:"filters"`
}

// Load reads the rules file at path and merges it over the built-in filter
// table. Domain entries from the file add to the built-in parameters for
// that domain. File defaults are appended to the built-in defaults unless
// replace_defaults is set. An empty path returns the built-in rules.
func Load(path string) (*Rules, error) {
	if path == "" {
		return &Rules{Filters: linkcheck.DefaultFilterTable()}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	defer func() { _ = f.Close() }()

	rules, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}

	return rules, nil
}

// Parse decodes a rules document from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Rules, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc document
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}

	table := linkcheck.DefaultFilterTable()
	for domain, params := range doc.Filters.Domains {
		domain = strings.ToLower(domain)
		table.Domains[domain] = append(table.Domains[domain], params...)
	}

	if doc.Filters.ReplaceDefaults {
		table.Default = append([]string(nil), doc.Filters.Default...)
	} else {
		table.Default = append(table.Default, doc.Filters.Default...)
	}

	return &Rules{
		Blocklist: doc.Blocklist,
		Filters:   table,
	}, nil
}

func (doc *document) validate() error {
	var err error

	for _, acct := range doc.Blocklist {
		user, domain, ok := strings.Cut(acct, "@")
		if !ok || user == "" || domain == "" || strings.Contains(domain, "@") {
			err = multierror.Append(err, fmt.Errorf("blocklist entry %q is not of the form user@domain", acct))
		}
	}

	for domain, params := range doc.Filters.Domains {
		if !strings.Contains(domain, ".") {
			err = multierror.Append(err, fmt.Errorf("filter domain %q must have at least two labels", domain))
		}

		for _, p := range params {
			if p == "" {
				err = multierror.Append(err, fmt.Errorf("filter domain %q lists an empty parameter name", domain))
			}
		}
	}

	for _, p := range doc.Filters.Default {
		if p == "" {
			err = multierror.Append(err, fmt.Errorf("default filters list an empty parameter name"))
		}
	}

	return err
}

// NewBlocklist returns the loaded accounts as a linkcheck.Blocklist.
func (r *Rules) NewBlocklist() *linkcheck.Blocklist {
	return linkcheck.NewBlocklist(r.Blocklist...)
}

// NewCanonicalizer returns a linkcheck.Canonicalizer for the loaded filters.
func (r *Rules) NewCanonicalizer() *linkcheck.Canonicalizer {
	return linkcheck.NewCanonicalizer(r.Filters)
}
