package main

import (
	"fmt"

	"github.com/scott-cotton/cli"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{EnvFile: ".env"}
	sOpts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	opts := append(sOpts, []*cli.Opt{
		&cli.Opt{
			Name:        "I",
			Aliases:     []string{"ifmt"},
			Description: "input format: json/j, yaml/y, text/t",
			Type:        cli.NamedFuncOpt(cfg.fmtFunc(&cfg.InFormat), "(format)"),
		}, &cli.Opt{
			Name:        "O",
			Aliases:     []string{"ofmt"},
			Description: "output format: json/j, yaml/y, text/t",
			Type:        cli.NamedFuncOpt(cfg.fmtFunc(&cfg.OutFormat), "(format)"),
		}}...)

	return cli.NewCommandAt(&cfg.Main, "mage").
		WithSynopsis("mage [opts] command [opts]").
		WithDescription("mage works with MAGE vault documents and talks to MAGE servers.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return mageMain(cfg, cc, args)
		}).
		WithSubs(
			DiffCommand(cfg),
			ApplyCommand(cfg),
			PatchCommand(cfg),
			EvalCommand(cfg),
			KeyCommand(cfg),
			CallCommand(cfg),
			GetCommand(cfg),
			ListenCommand(cfg))
}

func docCommand(mainCfg *MainConfig, name, synopsis, desc string, run func(*DocConfig, *cli.Context, []string) error, aliases ...string) *cli.Command {
	cfg := &DocConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, name).
		WithAliases(aliases...).
		WithSynopsis(synopsis).
		WithDescription(desc).
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return run(cfg, cc, args)
		})
}

func DiffCommand(mainCfg *MainConfig) *cli.Command {
	return docCommand(mainCfg, "diff", "diff <from> <to>",
		"print the tome diff operations turning one document into another", diff, "d")
}

func ApplyCommand(mainCfg *MainConfig) *cli.Command {
	return docCommand(mainCfg, "apply", "apply <ops> [doc]",
		"apply tome diff operations to a document (stdin when doc is omitted)", apply, "a")
}

func PatchCommand(mainCfg *MainConfig) *cli.Command {
	return docCommand(mainCfg, "patch", "patch [-apply] <json-patch> [doc]",
		"translate an RFC 6902 JSON patch into tome diff operations", patch, "p")
}

func EvalCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &EvalConfig{MainConfig: mainCfg, Vars: map[string]any{}}
	opts := []*cli.Opt{
		&cli.Opt{
			Name:        "e",
			Description: "set an expression variable",
			Type:        cli.NamedFuncOpt(cli.FuncOpt(varOptFunc(cfg.Vars)), "(name=val)"),
		},
	}
	return cli.NewCommandAt(&cfg.Eval, "eval").
		WithAliases("e", "ev").
		WithSynopsis("eval [-e name=val]... <expr> [doc]").
		WithDescription("evaluate an expression over a document").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return evalDoc(cfg, cc, args)
		})
}

func varOptFunc(vars map[string]any) func(cc *cli.Context, a string) (any, error) {
	return func(cc *cli.Context, a string) (any, error) {
		k, v, ok := splitVar(a)
		if !ok {
			return nil, fmt.Errorf("%w: expected name=val, got %q", cli.ErrUsage, a)
		}
		vars[k] = v
		return 0, nil
	}
}

func KeyCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DocConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Command, "key").
		WithAliases("k").
		WithSynopsis("key <topic> [key=value]...").
		WithDescription("print the cache key of a vault value").
		WithRun(func(cc *cli.Context, args []string) error {
			return key(cfg, cc, args)
		})
}

func remoteCommand(mainCfg *MainConfig, name, synopsis, desc string, run func(*RemoteConfig, *cli.Context, []string) error) *cli.Command {
	cfg := &RemoteConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, name).
		WithSynopsis(synopsis).
		WithDescription(desc).
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return run(cfg, cc, args)
		})
}

func CallCommand(mainCfg *MainConfig) *cli.Command {
	return remoteCommand(mainCfg, "call", "call [-events] <command> [params]",
		"send a user command and print its result", call)
}

func GetCommand(mainCfg *MainConfig) *cli.Command {
	return remoteCommand(mainCfg, "get", "get [-optional] [-maxAge n] <topic> [key=value]...",
		"read a vault value through the archivist", get)
}

func ListenCommand(mainCfg *MainConfig) *cli.Command {
	return remoteCommand(mainCfg, "listen", "listen [tag]...",
		"receive the message stream and print events (all when no tag is given)", listen)
}
