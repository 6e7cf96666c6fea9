package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch"
	"gopkg.in/yaml.v3"
)

// EnvConfig is the effective configuration of a single environment:
// app.all_environments overlaid with app.environments.<name>.
type EnvConfig struct {
	Name string

	Description    string
	OptionSettings map[string]map[string]interface{}
	TierType       string
	TierName       string
	TierVersion    string
	Archive        ArchiveConfig

	// Raw is the merged settings tree
	Raw map[string]interface{}
}

type ArchiveConfig struct {
	Includes []string
	Excludes []string
	Files    []ArchiveFile
	Generate *GenerateConfig
}

// ArchiveFile is an extra file added to the application archive.
type ArchiveFile struct {
	Path    string
	Content []byte
}

// GenerateConfig describes an external command that builds the archive.
type GenerateConfig struct {
	Cmd          string
	OutputFile   string
	UseShell     bool
	ExcludeFiles []string
}

// OptionSetting is a single namespace/option/value triple as the platform expects it.
type OptionSetting struct {
	Namespace  string
	OptionName string
	Value      string
}

type envSpec struct {
	Description    scalar                            `json:"description"`
	OptionSettings map[string]map[string]interface{} `json:"option_settings"`
	TierType       scalar                            `json:"tier_type"`
	TierName       scalar                            `json:"tier_name"`
	TierVersion    scalar                            `json:"tier_version"`
	Archive        struct {
		Includes []string                     `json:"includes"`
		Excludes []string                     `json:"excludes"`
		Files    []map[string]archiveFileSpec `json:"files"`
		Generate *generateSpec                `json:"generate"`
	} `json:"archive"`
}

type archiveFileSpec struct {
	Content string      `json:"content"`
	YAML    interface{} `json:"yaml"`
}

type generateSpec struct {
	Cmd          string   `json:"cmd"`
	OutputFile   string   `json:"output_file"`
	UseShell     bool     `json:"use_shell"`
	ExcludeFiles []string `json:"exclude_files"`
}

// scalar accepts any YAML scalar and keeps its string form.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = scalar(str)
		return nil
	}

	*s = scalar(b)

	return nil
}

// ParseEnvConfig resolves the settings of the named environment.
//
// Keys of the environment override those of app.all_environments recursively.
// A null value in the environment removes the inherited key.
func ParseEnvConfig(c *Config, envName string) (*EnvConfig, error) {
	envPath := "app.environments." + envName

	if !c.Has(envPath) {
		return nil, fmt.Errorf("environment %q is not defined in %s", envName, c.describe())
	}

	all, err := json.Marshal(orEmpty(c.Get("app.all_environments", nil)))
	if err != nil {
		return nil, fmt.Errorf("marshalling all_environments: %w", err)
	}

	env, err := json.Marshal(orEmpty(c.Get(envPath, nil)))
	if err != nil {
		return nil, fmt.Errorf("marshalling environment %q: %w", envName, err)
	}

	merged, err := jsonpatch.MergePatch(all, env)
	if err != nil {
		return nil, fmt.Errorf("merging settings of environment %q: %w", envName, err)
	}

	var spec envSpec
	if err := decodeNumbers(merged, &spec); err != nil {
		return nil, fmt.Errorf("decoding settings of environment %q: %w", envName, err)
	}

	var raw map[string]interface{}
	if err := decodeNumbers(merged, &raw); err != nil {
		return nil, fmt.Errorf("decoding settings of environment %q: %w", envName, err)
	}

	ec := &EnvConfig{
		Name:           envName,
		Description:    string(spec.Description),
		OptionSettings: spec.OptionSettings,
		TierType:       string(spec.TierType),
		TierName:       string(spec.TierName),
		TierVersion:    string(spec.TierVersion),
		Raw:            raw,
	}

	ec.Archive.Includes = spec.Archive.Includes
	ec.Archive.Excludes = spec.Archive.Excludes

	for _, entry := range spec.Archive.Files {
		paths := make([]string, 0, len(entry))
		for p := range entry {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, p := range paths {
			f, err := toArchiveFile(p, entry[p])
			if err != nil {
				return nil, err
			}
			ec.Archive.Files = append(ec.Archive.Files, f)
		}
	}

	if g := spec.Archive.Generate; g != nil && g.Cmd != "" {
		ec.Archive.Generate = &GenerateConfig{
			Cmd:          g.Cmd,
			OutputFile:   g.OutputFile,
			UseShell:     g.UseShell,
			ExcludeFiles: g.ExcludeFiles,
		}
	}

	return ec, nil
}

func toArchiveFile(path string, spec archiveFileSpec) (ArchiveFile, error) {
	if spec.YAML != nil {
		bs, err := yaml.Marshal(spec.YAML)
		if err != nil {
			return ArchiveFile{}, fmt.Errorf("marshalling yaml of archive file %s: %w", path, err)
		}
		return ArchiveFile{Path: path, Content: bs}, nil
	}

	return ArchiveFile{Path: path, Content: []byte(spec.Content)}, nil
}

// ParseOptionSettings flattens namespace -> option -> value into triples,
// ordered by namespace and then option name.
func ParseOptionSettings(settings map[string]map[string]interface{}) []OptionSetting {
	var r []OptionSetting

	namespaces := make([]string, 0, len(settings))
	for ns := range settings {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		params := settings[ns]

		names := make([]string, 0, len(params))
		for n := range params {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, n := range names {
			r = append(r, OptionSetting{
				Namespace:  ns,
				OptionName: n,
				Value:      stringify(params[n]),
			})
		}
	}

	return r
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		bs, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(bs)
	}
}

// decodeNumbers keeps numbers as json.Number so that their text survives.
func decodeNumbers(bs []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(bs))
	dec.UseNumber()
	return dec.Decode(v)
}

func orEmpty(v interface{}) interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v
}

func (c *Config) describe() string {
	if c.Path == "" {
		return "config"
	}
	return c.Path
}
