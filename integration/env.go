package integration

import (
	"os"
	"sort"
	"strings"
	"unicode"
)

// ConfigKeysEnv lists, comma-separated, the configuration keys passed to a launched binary, so
// that ConfigFromEnviron can tell them apart from the rest of the environment.
const ConfigKeysEnv = "MAINLAUNCH_CONFIG_KEYS"

// EnvName maps a configuration key to the environment variable that carries it: redis.url
// becomes REDIS_URL and mock-service.url becomes MOCK_SERVICE_URL.
func EnvName(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, key)
}

// Environ returns the environment entries for config, sorted by key, followed by ConfigKeysEnv.
func Environ(config map[string]string) []string {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ret := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		ret = append(ret, EnvName(k)+"="+config[k])
	}
	return append(ret, ConfigKeysEnv+"="+strings.Join(keys, ","))
}

// ConfigFromEnviron recovers the configuration a Launcher passed to the current process. environ
// is usually os.Environ().
func ConfigFromEnviron(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, e := range environ {
		if name, value, ok := strings.Cut(e, "="); ok {
			vars[name] = value
		}
	}
	config := make(map[string]string)
	for _, key := range strings.Split(vars[ConfigKeysEnv], ",") {
		if key == "" {
			continue
		}
		if value, ok := vars[EnvName(key)]; ok {
			config[key] = value
		}
	}
	return config
}

// EnvConfig is ConfigFromEnviron(os.Environ()).
func EnvConfig() map[string]string {
	return ConfigFromEnviron(os.Environ())
}
