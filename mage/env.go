package mage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from dotenv files. Missing files are
// ignored; variables already set in the environment win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields of c from MAGE_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"MAGE_BASE_URL":          &c.BaseURL,
		"MAGE_APP":               &c.App,
		"MAGE_USERNAME":          &c.Username,
		"MAGE_PASSWORD":          &c.Password,
		"MAGE_COMMAND_TRANSPORT": &c.Command.Transport,
		"MAGE_STREAM_TRANSPORT":  &c.Stream.Transport,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	durs := map[string]*time.Duration{
		"MAGE_COMMAND_TIMEOUT":       &c.Command.Timeout,
		"MAGE_STREAM_INTERVAL":       &c.Stream.Interval,
		"MAGE_STREAM_ERROR_INTERVAL": &c.Stream.ErrorInterval,
	}
	for name, dst := range durs {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, name, err)
		}
		*dst = d
	}
	return nil
}
