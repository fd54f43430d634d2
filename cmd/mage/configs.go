package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mage/mage-sdk-go/format"
	"github.com/mage/mage-sdk-go/mage"
	"github.com/mage/mage-sdk-go/vault"

	"github.com/scott-cotton/cli"

	"github.com/mattn/go-isatty"
)

type MainConfig struct {
	J      bool `cli:"name=j aliases=json desc='do i/o in json'"`
	Y      bool `cli:"name=y aliases=yaml desc='do i/o in yaml'"`
	Pretty bool `cli:"name=pretty desc='indent json output'"`
	Color  bool `cli:"name=color desc='print events in color'"`

	ConfigFile string `cli:"name=config desc='client configuration file (yaml)'"`
	EnvFile    string `cli:"name=env desc='dotenv file' default=.env"`

	InFormat, OutFormat *format.Format

	Main *cli.Command
}

func (cfg *MainConfig) fmtFunc(fps ...**format.Format) cli.FuncOpt {
	return cli.FuncOpt(func(_ *cli.Context, v string) (any, error) {
		f, err := format.ParseFormat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		for _, fp := range fps {
			*fp = &f
		}
		return f, nil
	})
}

func (cfg *MainConfig) mainFormat() *format.Format {
	var f format.Format
	switch {
	case cfg.Y:
		f = format.YAMLFormat
	case cfg.J:
		f = format.JSONFormat
	default:
		return nil
	}
	return &f
}

// inFormat returns the format to read file with: -I, then -j/-y, then the
// file suffix.
func (cfg *MainConfig) inFormat(file string) format.Format {
	if cfg.InFormat != nil {
		return *cfg.InFormat
	}
	if f := cfg.mainFormat(); f != nil {
		return *f
	}
	return format.FromSuffix(file)
}

func (cfg *MainConfig) outFormat() format.Format {
	if cfg.OutFormat != nil {
		return *cfg.OutFormat
	}
	if f := cfg.mainFormat(); f != nil {
		return *f
	}
	return format.JSONFormat
}

// readDoc decodes file, or stdin for "-".
func (cfg *MainConfig) readDoc(cc *cli.Context, file string) (any, error) {
	var (
		d   []byte
		err error
	)
	if file == "-" {
		d, err = io.ReadAll(cc.In)
	} else {
		d, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %q: %w", file, err)
	}
	v, err := cfg.inFormat(file).Decode(d)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", file, err)
	}
	return v, nil
}

func (cfg *MainConfig) write(w io.Writer, v any) error {
	d, err := cfg.outFormat().Encode(v, cfg.Pretty)
	if err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	if _, err := w.Write(d); err != nil {
		return err
	}
	if len(d) == 0 || d[len(d)-1] != '\n' {
		_, err = w.Write([]byte("\n"))
	}
	return err
}

// useColor reports whether event output to w is colored: always with
// -color, otherwise when w is a terminal.
func (cfg *MainConfig) useColor(w io.Writer) bool {
	for _, opt := range cfg.Main.Opts {
		if opt.Name == "color" && opt.Value != nil {
			return cfg.Color
		}
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// clientConfig loads the dotenv file, the config file when given, and the
// MAGE_* environment overrides.
func (cfg *MainConfig) clientConfig() (*mage.Config, error) {
	if err := mage.LoadEnv(cfg.EnvFile); err != nil {
		return nil, err
	}
	mCfg := mage.DefaultConfig()
	if cfg.ConfigFile != "" {
		var err error
		mCfg, err = mage.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
	}
	if err := mCfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return mCfg, mCfg.Validate()
}

// parseIndex reads k=v arguments into an index.
func parseIndex(args []string) (vault.Index, error) {
	index := vault.Index{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", cli.ErrUsage, a)
		}
		index[k] = v
	}
	return index, nil
}

type DocConfig struct {
	*MainConfig
	Apply bool `cli:"name=apply desc='print the patched document instead of the operations'"`

	Command *cli.Command
}

type EvalConfig struct {
	*MainConfig
	Vars map[string]any

	Eval *cli.Command
}

type RemoteConfig struct {
	*MainConfig
	Optional bool `cli:"name=optional desc='allow absent values'"`
	MaxAge   int  `cli:"name=maxAge desc='maximum age of cached values in seconds'"`
	Events   bool `cli:"name=events desc='print the events received'"`

	Command *cli.Command
}
