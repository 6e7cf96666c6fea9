package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/twpayne/go-vfs"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const DefaultFileName = "ebs.config"

// Config is the parsed ebs-deploy configuration file.
//
// Values are addressed by dotted paths like "app.versions_to_keep".
type Config struct {
	// Path is the file the config was read from, if any
	Path string

	raw map[string]interface{}
}

// Load reads, parses and validates the YAML config file at path.
func Load(fs vfs.FS, path string) (*Config, error) {
	bs, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	c.Path = path

	return c, nil
}

// Parse parses and validates YAML config contents.
//
// Floats keep their literal text as json.Number so that "1.0" is not turned into "1".
func Parse(bs []byte) (*Config, error) {
	var doc yaml.Node

	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	v, err := fromNode(&doc)
	if err != nil {
		return nil, err
	}

	if v == nil {
		v = map[string]interface{}{}
	}

	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type of config: want a mapping, got %T", v)
	}

	if err := validate(m); err != nil {
		return nil, err
	}

	return &Config{raw: m}, nil
}

// FromMap builds a Config from an in-memory tree without validation.
func FromMap(m map[string]interface{}) *Config {
	return &Config{raw: m}
}

func validate(m map[string]interface{}) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewGoLoader(m)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}

	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Get returns the value at the dotted path, or def when nothing is set there.
func (c *Config) Get(path string, def interface{}) interface{} {
	v, err := jsonpath.Get(toJSONPath(path), c.raw)
	if err != nil || v == nil {
		return def
	}

	return v
}

func (c *Config) GetString(path string, def string) string {
	switch t := c.Get(path, nil).(type) {
	case nil:
		return def
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (c *Config) GetInt(path string, def int) (int, error) {
	switch t := c.Get(path, nil).(type) {
	case nil:
		return def, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		return int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("parsing %s=%s as integer: %w", path, t, err)
		}
		return int(f), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("parsing %s=%q as integer: %w", path, t, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unexpected type of %s: want integer, got %T", path, t)
	}
}

// Has reports whether the dotted path exists, even when its value is null.
func (c *Config) Has(path string) bool {
	keys := strings.Split(path, ".")

	var cur interface{} = c.raw

	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}

		cur, ok = m[k]
		if !ok {
			return false
		}
	}

	return true
}

// toJSONPath turns "app.environments.my-env" into $["app"]["environments"]["my-env"]
// so that keys containing dashes or colons are not parsed as expressions.
func toJSONPath(path string) string {
	var b strings.Builder

	b.WriteString("$")

	for _, k := range strings.Split(path, ".") {
		b.WriteString("[")
		b.WriteString(strconv.Quote(k))
		b.WriteString("]")
	}

	return b.String()
}

func fromNode(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		s := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	case yaml.MappingNode:
		m := map[string]interface{}{}
		if err := setMapping(m, n); err != nil {
			return nil, err
		}
		return m, nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!float" && json.Valid([]byte(n.Value)) {
			return json.Number(n.Value), nil
		}
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

// setMapping copies the entries of the mapping node into m.
// Entries merged in with << never override the mapping's own keys.
func setMapping(m map[string]interface{}, n *yaml.Node) error {
	var merges []*yaml.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]

		if k.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: unsupported non-scalar key", k.Line)
		}

		if k.ShortTag() == "!!merge" {
			merges = append(merges, v)
			continue
		}

		val, err := fromNode(v)
		if err != nil {
			return err
		}
		m[k.Value] = val
	}

	for _, mn := range merges {
		mn = unalias(mn)

		sources := []*yaml.Node{mn}
		if mn.Kind == yaml.SequenceNode {
			sources = mn.Content
		}

		for _, src := range sources {
			src = unalias(src)
			if src.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: merge value must be a mapping", src.Line)
			}

			sub := map[string]interface{}{}
			if err := setMapping(sub, src); err != nil {
				return err
			}

			for k, v := range sub {
				if _, ok := m[k]; !ok {
					m[k] = v
				}
			}
		}
	}

	return nil
}

func unalias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}
