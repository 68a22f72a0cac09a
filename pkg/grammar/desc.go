package grammar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// CommandDesc is the declarative description of one command.
type CommandDesc struct {
	// Name is the leading keyword. Pattern commands leave it empty and start
	// with a field instead, e.g. an ACL rule beginning with its sequence number.
	Name        string            `yaml:"name,omitempty"`
	Mode        Modes             `yaml:"mode"`
	ShortHelp   string            `yaml:"short-help,omitempty"`
	Doc         string            `yaml:"doc,omitempty"`
	Action      string            `yaml:"action,omitempty"`
	NoAction    string            `yaml:"no-action,omitempty"`
	NoSupported bool              `yaml:"no-supported,omitempty"`
	Bind        map[string]string `yaml:"bind,omitempty"`
	Completion  string            `yaml:"completion,omitempty"`
	ObjType     string            `yaml:"obj-type,omitempty"`
	Feature     string            `yaml:"feature,omitempty"`
	Data        map[string]any    `yaml:"data,omitempty"`
	Args        []NodeDesc        `yaml:"args,omitempty"`
}

// NodeDesc describes one grammar node. Exactly one of Token, Field, Choice
// or Optional must be set; a Token may also set Field to record its
// canonical spelling in the data object.
type NodeDesc struct {
	Token      string         `yaml:"token,omitempty"`
	Field      string         `yaml:"field,omitempty"`
	Type       string         `yaml:"type,omitempty"`
	Values     []string       `yaml:"values,omitempty"`
	Range      string         `yaml:"range,omitempty"`
	Handler    string         `yaml:"handler,omitempty"`
	Completion string         `yaml:"completion,omitempty"`
	Choice     [][]NodeDesc   `yaml:"choice,omitempty"`
	Optional   []NodeDesc     `yaml:"optional,omitempty"`
	Data       map[string]any `yaml:"data,omitempty"`
	Help       string         `yaml:"help,omitempty"`
	Doc        string         `yaml:"doc,omitempty"`
	Action     string         `yaml:"action,omitempty"`
	NoAction   string         `yaml:"no-action,omitempty"`
}

// Modes accepts either a single mode or a list in YAML.
type Modes []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Modes) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*m = Modes{n.Value}
		return nil
	case yaml.SequenceNode:
		var l []string
		if err := n.Decode(&l); err != nil {
			return err
		}
		*m = l
		return nil
	}
	return fmt.Errorf("line %d: mode must be a string or a list", n.Line)
}

type descFile struct {
	Commands []CommandDesc `yaml:"commands"`
}

// ParseDescriptions decodes one YAML description document. Unknown keys are
// rejected so typos fail at load time.
func ParseDescriptions(r io.Reader) ([]CommandDesc, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f descFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return f.Commands, nil
}

// Supplier provides command descriptions per syntax version. Each version
// is a directory of YAML files under Root.
type Supplier struct {
	FS      fs.FS
	Root    string
	Default string
}

// Versions lists the available syntax versions.
func (s Supplier) Versions() ([]string, error) {
	ents, err := fs.ReadDir(s.FS, s.root())
	if err != nil {
		return nil, fmt.Errorf("list syntax versions: %w", err)
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s Supplier) root() string {
	if s.Root == "" {
		return "."
	}
	return s.Root
}

// Load returns the descriptions of version, falling back to the default
// version when version is empty or unknown. The version actually loaded is
// returned alongside.
func (s Supplier) Load(version string) ([]CommandDesc, string, error) {
	if version == "" {
		version = s.Default
	}
	dir := path.Join(s.root(), version)
	files, err := fs.Glob(s.FS, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, "", err
	}
	if len(files) == 0 {
		if version == s.Default {
			return nil, "", fmt.Errorf("syntax version %q has no descriptions", version)
		}
		slog.Warn("unknown syntax version, using default", "version", version, "default", s.Default)
		return s.Load(s.Default)
	}
	sort.Strings(files)
	var out []CommandDesc
	for _, f := range files {
		data, err := fs.ReadFile(s.FS, f)
		if err != nil {
			return nil, "", err
		}
		descs, err := ParseDescriptions(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, descs...)
	}
	return out, version, nil
}
