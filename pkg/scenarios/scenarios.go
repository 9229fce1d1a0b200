// Package scenarios provides sample security alerts for demonstrating the
// analysis pipeline.
package scenarios

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoScenarios is returned when a scenario file parses but defines nothing.
var ErrNoScenarios = errors.New("no scenarios defined")

// Scenario is a named sample alert.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Alert       string `yaml:"alert"`
}

type file struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Builtin returns the default sample scenarios.
func Builtin() []Scenario {
	return []Scenario{
		{
			Name:        "ssh-brute-force",
			Description: "Repeated SSH authentication failures from an external host",
			Alert:       "Multiple failed SSH login attempts detected from IP 45.13.22.98 for user admin at 02:14:33",
		},
		{
			Name:        "admin-unusual-login",
			Description: "Administrative login at an unusual hour from a hosting provider",
			Alert:       "Admin user john.doe logged in from 185.107.56.21 at 3:44 AM",
		},
		{
			Name:        "internal-connection",
			Description: "Unexpected connection between internal hosts",
			Alert:       "Unusual connection from internal host 192.168.1.5 to database server at 14:22",
		},
		{
			Name:        "file-share-access",
			Description: "File share accessed from an unfamiliar address",
			Alert:       "Access to sensitive file share from 67.43.156.89 by account svc_backup at 23:10",
		},
	}
}

// Load reads scenarios from a YAML file of the form
//
//	scenarios:
//	  - name: ...
//	    alert: ...
//
// An empty path returns the built-in set. Entries without alert text are skipped.
func Load(path string) ([]Scenario, error) {
	if path == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	out := make([]Scenario, 0, len(f.Scenarios))
	for i, s := range f.Scenarios {
		if s.Alert == "" {
			continue
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("scenario-%d", i+1)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoScenarios)
	}
	return out, nil
}

// Find returns the scenario with the given name.
func Find(list []Scenario, name string) (Scenario, bool) {
	for _, s := range list {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}
