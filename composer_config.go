package versionit

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// DefaultComposerConfigFile is the composer configuration read by the craft
// command when no file is given.
const DefaultComposerConfigFile = "version-templates.yaml"

// ComposerConfig is the declarative form of a Composer.
type ComposerConfig struct {
	DefaultTemplate string
	Counters        map[string]uint32
	Templates       []Template
}

// NewComposerConfig returns an empty configuration.
func NewComposerConfig() *ComposerConfig {
	return &ComposerConfig{Counters: make(map[string]uint32)}
}

func (c *ComposerConfig) AddTemplate(t Template) {
	c.Templates = append(c.Templates, t)
}

func (c *ComposerConfig) SetCounter(name string, value uint32) {
	if c.Counters == nil {
		c.Counters = make(map[string]uint32)
	}
	c.Counters[name] = value
}

func (c *ComposerConfig) SetDefaultTemplate(name string) {
	c.DefaultTemplate = name
}

type composerConfigFile struct {
	DefaultTemplate string            `yaml:"default_template"`
	Counters        map[string]uint32 `yaml:"counters"`
	Templates       []templateConfig  `yaml:"templates"`
}

type templateConfig struct {
	Name      string        `yaml:"name"`
	Separator *string       `yaml:"separator"`
	Prefix    string        `yaml:"prefix"`
	Suffix    string        `yaml:"suffix"`
	Blocks    []blockConfig `yaml:"blocks"`
}

type blockConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Format string            `yaml:"format"`
	Config map[string]string `yaml:"config"`

	Major *uint32 `yaml:"major"`
	Minor *uint32 `yaml:"minor"`
	Patch *uint32 `yaml:"patch"`
	Year  *uint32 `yaml:"year"`
	Month *uint32 `yaml:"month"`
	Day   *uint32 `yaml:"day"`

	Counter string `yaml:"counter"`
	Value   string `yaml:"value"`
	Ref     string `yaml:"ref"`
}

// LoadComposerConfig reads a YAML or JSON composer configuration file.
func LoadComposerConfig(path string) (*ComposerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading composer config: %w", err)
	}
	cfg, err := ParseComposerConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing composer config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseComposerConfig decodes a YAML or JSON composer configuration.
func ParseComposerConfig(data []byte) (*ComposerConfig, error) {
	var raw composerConfigFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cfg := NewComposerConfig()
	cfg.DefaultTemplate = raw.DefaultTemplate
	maps.Copy(cfg.Counters, raw.Counters)

	for i, tc := range raw.Templates {
		t, err := tc.template()
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		cfg.AddTemplate(t)
	}
	return cfg, nil
}

func (tc templateConfig) template() (Template, error) {
	if tc.Name == "" {
		return Template{}, errors.New("template name is required")
	}

	t := NewTemplate(tc.Name).WithPrefix(tc.Prefix).WithSuffix(tc.Suffix)
	if tc.Separator != nil {
		t = t.WithSeparator(*tc.Separator)
	}

	seen := make(map[string]bool, len(tc.Blocks))
	for _, bc := range tc.Blocks {
		block, err := bc.block()
		if err != nil {
			return Template{}, fmt.Errorf("template %q: %w", tc.Name, err)
		}
		if seen[block.Name] {
			return Template{}, fmt.Errorf("template %q: duplicate block name %q", tc.Name, block.Name)
		}
		seen[block.Name] = true
		t = t.AddBlock(block)
	}
	return t, nil
}

func (bc blockConfig) block() (Block, error) {
	if bc.Name == "" {
		return Block{}, errors.New("block name is required")
	}

	var kind BlockKind
	switch strings.ToLower(bc.Type) {
	case "semantic":
		kind = SemanticBlock{Major: bc.Major, Minor: bc.Minor, Patch: bc.Patch}
	case "calver":
		kind = CalverBlock{Year: bc.Year, Month: bc.Month, Day: bc.Day}
	case "timestamp":
		kind = TimestampBlock{}
	case "commit":
		kind = CommitBlock{}
	case "counter":
		if bc.Counter == "" {
			return Block{}, fmt.Errorf("counter block %q requires a counter name", bc.Name)
		}
		kind = CounterBlock{Name: bc.Counter}
	case "text":
		kind = TextBlock{Value: bc.Value}
	case "date":
		if bc.Format == "" {
			return Block{}, fmt.Errorf("date block %q requires a format", bc.Name)
		}
		kind = DateBlock{Format: bc.Format}
	case "branch":
		kind = BranchBlock{}
	case "build_number", "buildnumber":
		kind = BuildNumberBlock{}
	case "versioned":
		if bc.Ref == "" {
			return Block{}, fmt.Errorf("versioned block %q requires a ref", bc.Name)
		}
		kind = VersionedBlock{Name: bc.Ref}
	default:
		return Block{}, fmt.Errorf("block %q has unknown type %q", bc.Name, bc.Type)
	}

	block := NewBlock(bc.Name, kind).WithFormat(bc.Format)
	for _, key := range slices.Sorted(maps.Keys(bc.Config)) {
		block = block.WithConfig(key, bc.Config[key])
	}
	return block, nil
}

// SaveCounters writes counters back into the composer configuration at
// path. Only the counters mapping is touched; the rest of the document keeps
// its layout. Files with a .json extension stay JSON.
func SaveCounters(path string, counters map[string]uint32) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading composer config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading composer config: %w", err)
	}

	var out []byte
	if strings.EqualFold(filepath.Ext(path), ".json") {
		out, err = setJSONCounters(data, counters)
	} else {
		out, err = setYAMLCounters(data, counters)
	}
	if err != nil {
		return fmt.Errorf("updating counters in %s: %w", path, err)
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing composer config: %w", err)
	}
	return nil
}

func setJSONCounters(data []byte, counters map[string]uint32) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	var err error
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		data, err = sjson.SetBytes(data, "counters."+escapeJSONPath(name), counters[name])
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func setYAMLCounters(data []byte, counters map[string]uint32) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("composer config root is not a mapping")
	}

	var counterNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "counters" {
			counterNode = root.Content[i+1]
			break
		}
	}
	if counterNode == nil {
		counterNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = append(root.Content, scalarNode("!!str", "counters"), counterNode)
	}
	if counterNode.Kind != yaml.MappingNode {
		// "counters:" with no value decodes as a null scalar.
		*counterNode = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	counterNode.Style = 0

	existing := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(counterNode.Content); i += 2 {
		existing[counterNode.Content[i].Value] = counterNode.Content[i+1]
	}
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		value := strconv.FormatUint(uint64(counters[name]), 10)
		if node, ok := existing[name]; ok {
			node.Kind = yaml.ScalarNode
			node.Tag = "!!int"
			node.Value = value
			continue
		}
		counterNode.Content = append(counterNode.Content, scalarNode("!!str", name), scalarNode("!!int", value))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func escapeJSONPath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@', '!':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
