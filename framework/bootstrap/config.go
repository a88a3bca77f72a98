package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base configuration file looked for in every root.
	ConfigFileName = "application.yaml"

	profilePrefix = "%"
)

// ProfileConfigFileName returns the name of the profile-specific configuration file.
func ProfileConfigFileName(profile string) string {
	return "application-" + profile + ".yaml"
}

// LoadConfig reads the configuration of an application whose roots are given in precedence
// order. Nested YAML keys are flattened with dots. Within a root, the profile-specific file
// overrides the base file, and a key written as "%<profile>.<key>" applies only when that
// profile is active and overrides the plain key. A value from an earlier root always wins over
// one from a later root.
func LoadConfig(roots []string, profile string) (map[string]string, error) {
	ret := make(map[string]string)
	for i := len(roots) - 1; i >= 0; i-- {
		cfg, err := loadRoot(roots[i], profile)
		if err != nil {
			return nil, err
		}
		for k, v := range cfg {
			ret[k] = v
		}
	}
	return ret, nil
}

func loadRoot(root, profile string) (map[string]string, error) {
	ret := make(map[string]string)
	files := []string{ConfigFileName}
	if profile != "" {
		files = append(files, ProfileConfigFileName(profile))
	}
	for _, name := range files {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		cfg, err := ParseConfig(data, profile)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration file %s: %w", path, err)
		}
		for k, v := range cfg {
			ret[k] = v
		}
	}
	return ret, nil
}

// ParseConfig parses one YAML configuration document for the given profile.
func ParseConfig(data []byte, profile string) (map[string]string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	flatten("", doc, flat)

	ret := make(map[string]string)
	var scoped []string
	for k, v := range flat {
		if strings.HasPrefix(k, profilePrefix) {
			scoped = append(scoped, k)
			continue
		}
		ret[k] = v
	}
	for _, k := range scoped {
		name, key, ok := strings.Cut(strings.TrimPrefix(k, profilePrefix), ".")
		if ok && name == profile && profile != "" {
			ret[key] = flat[k]
		}
	}
	return ret, nil
}

func flatten(prefix string, value interface{}, into map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, child := range v {
			flatten(joinKey(prefix, k), child, into)
		}
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		into[prefix] = strings.Join(parts, ",")
	case nil:
		into[prefix] = ""
	default:
		into[prefix] = fmt.Sprint(v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// SortedKeys returns the keys of a configuration map in lexical order.
func SortedKeys(config map[string]string) []string {
	keys := maps.Keys(config)
	sort.Strings(keys)
	return keys
}
