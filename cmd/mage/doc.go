package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mage/mage-sdk-go/eval"
	"github.com/mage/mage-sdk-go/libdiff"
	"github.com/mage/mage-sdk-go/tome"
	"github.com/mage/mage-sdk-go/vault"

	"github.com/scott-cotton/cli"
)

func diff(cfg *DocConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: diff needs 2 documents, got %d", cli.ErrUsage, len(args))
	}
	from, err := cfg.readDoc(cc, args[0])
	if err != nil {
		return err
	}
	to, err := cfg.readDoc(cc, args[1])
	if err != nil {
		return err
	}
	ops := libdiff.Diff(from, to)
	if cfg.Apply {
		return applyAndWrite(cfg, cc, from, ops)
	}
	return cfg.write(cc.Out, ops)
}

func apply(cfg *DocConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: apply needs operations and at most one document", cli.ErrUsage)
	}
	d, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ops, err := tome.ParseOps(d)
	if err != nil {
		return err
	}
	docFile := "-"
	if len(args) == 2 {
		docFile = args[1]
	}
	v, err := cfg.readDoc(cc, docFile)
	if err != nil {
		return err
	}
	return applyAndWrite(cfg, cc, v, ops)
}

func patch(cfg *DocConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: patch needs a json patch and at most one document", cli.ErrUsage)
	}
	p, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	docFile := "-"
	if len(args) == 2 {
		docFile = args[1]
	}
	v, err := cfg.readDoc(cc, docFile)
	if err != nil {
		return err
	}
	doc, err := tome.New(v, tome.WithLogger(theLog))
	if err != nil {
		return err
	}
	defer doc.Destroy()
	ops, err := libdiff.FromJSONPatch(doc, p)
	if err != nil {
		return err
	}
	if cfg.Apply {
		return applyAndWrite(cfg, cc, v, ops)
	}
	return cfg.write(cc.Out, ops)
}

func applyAndWrite(cfg *DocConfig, cc *cli.Context, v any, ops []tome.Op) error {
	doc, err := tome.New(v, tome.WithLogger(theLog))
	if err != nil {
		return err
	}
	defer doc.Destroy()
	if err := doc.ApplyDiff(ops); err != nil {
		return err
	}
	return cfg.write(cc.Out, doc.Snapshot())
}

func evalDoc(cfg *EvalConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Eval.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: eval needs an expression and at most one document", cli.ErrUsage)
	}
	var root tome.Node
	if len(args) == 2 {
		v, err := cfg.readDoc(cc, args[1])
		if err != nil {
			return err
		}
		doc, err := tome.New(v, tome.WithLogger(theLog))
		if err != nil {
			return err
		}
		defer doc.Destroy()
		root = doc.Root()
	}
	res, err := eval.EvalEnv(args[0], root, varValues(cfg.Vars))
	if err != nil {
		return err
	}
	return cfg.write(cc.Out, res)
}

// varValues decodes variable values written as JSON, keeping the others
// as strings.
func varValues(vars map[string]any) map[string]any {
	res := make(map[string]any, len(vars))
	for k, v := range vars {
		res[k] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		var x any
		if err := json.Unmarshal([]byte(s), &x); err == nil {
			res[k] = x
		}
	}
	return res
}

func key(cfg *DocConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Command.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: key needs a topic", cli.ErrUsage)
	}
	index, err := parseIndex(args[1:])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cc.Out, vault.CacheKey(args[0], index))
	return err
}
