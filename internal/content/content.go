// Package content loads the message catalog: the prose the server sends
// for help, prompts, and the about screen.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

// Messages is the message catalog. Templates use {name} placeholders.
type Messages struct {
	About          string `yaml:"about"`
	LobbyPrompt    string `yaml:"lobby_prompt"`
	LoginPrompt    string `yaml:"login_prompt"`
	RegisterPrompt string `yaml:"register_prompt"`
	PasswordRules  string `yaml:"password_rules"`
}

// Default returns the built-in catalog.
func Default() Messages {
	var m Messages
	if err := yaml.Unmarshal(defaultMessages, &m); err != nil {
		panic(fmt.Sprintf("parsing built-in messages: %v", err))
	}
	return m
}

// Load reads an override file and layers it over the built-in catalog.
// Keys missing from the file keep their built-in text. An empty path
// returns the built-in catalog.
func Load(path string) (Messages, error) {
	m := Default()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Messages{}, fmt.Errorf("reading messages file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Messages{}, fmt.Errorf("parsing messages file %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Messages{}, fmt.Errorf("messages file %s: %w", path, err)
	}
	return m, nil
}

// Validate checks every entry is non-empty and templates keep their placeholder.
func (m Messages) Validate() error {
	var errs []string
	for key, v := range map[string]string{
		"about":           m.About,
		"lobby_prompt":    m.LobbyPrompt,
		"login_prompt":    m.LoginPrompt,
		"register_prompt": m.RegisterPrompt,
		"password_rules":  m.PasswordRules,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, key+" must not be empty")
		}
	}
	for key, v := range map[string]string{
		"login_prompt":    m.LoginPrompt,
		"register_prompt": m.RegisterPrompt,
	} {
		if !strings.Contains(v, "{name}") {
			errs = append(errs, key+" must contain {name}")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Fill substitutes {name} in a template.
func Fill(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}
