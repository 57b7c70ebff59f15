package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

const envPrefix = "INTEROP"

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	return decoder.Decode(cfg)
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process(envPrefix, cfg)
}

// Load reads the yaml file, overlays INTEROP_* environment variables and validates the result
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if err := readFile(path, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", path)
	}
	if err := readEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot read environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

func Init(path string) *Configuration {
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	return cfg
}

// ParseChainID parses a decimal chain id. Hex ("0x10f") is legacy
// behaviour seen in older deployments and only accepted when allowHex is set.
func ParseChainID(s string, allowHex bool) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty chain id")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !allowHex {
			return 0, errors.Newf("hex chain id %q not accepted", s)
		}
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
