package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configHeader = `# fhasched configuration file
#
# Every value can be overridden with an environment variable named after its
# path, e.g. FHASCHED_SCHEDULER_MAX_THREADS_PER_FILE=4.
#
# The scheduler section is reloaded while "fhasched simulate" runs with --watch.
# scheduler.max_threads_per_file and scheduler.max_reqs_per_thread accept -1
# for "no limit"; 0 selects the default.

`

// InitConfig writes a default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.Write(data)

	return SaveRaw(path, buf.Bytes())
}
