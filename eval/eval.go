// Package eval evaluates expr-lang expressions over tome documents.
//
// The environment of an expression is the snapshot of the evaluated node,
// bound to the name doc, plus its top level fields when it is a map.
// Expressions can also call
//
//	path(p)     the snapshot of the node at kinded path p, relative to the node
//	kind(p)     the kind of the node at p: value, list or map
//	has(p)      whether a node exists at p
//	getenv(v)   the value of environment variable v
package eval

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/mage/mage-sdk-go/debug"
	"github.com/mage/mage-sdk-go/tome"

	"github.com/expr-lang/expr"
)

var ErrEval = errors.New("eval error")

// Eval evaluates src against the document rooted at root.
func Eval(src string, root tome.Node) (any, error) {
	return EvalEnv(src, root, nil)
}

// EvalEnv is Eval with extra variables, which override document fields of
// the same name.
func EvalEnv(src string, root tome.Node, extra map[string]any) (any, error) {
	if debug.Eval() {
		debug.Logf("eval %q\n", src)
	}
	env := Env(root)
	maps.Copy(env, extra)
	prg, err := expr.Compile(src, append(exprOpts(root), expr.Env(env))...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEval, err)
	}
	res, err := expr.Run(prg, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEval, err)
	}
	return res, nil
}

// Env returns the expression environment for root.
func Env(root tome.Node) map[string]any {
	env := map[string]any{}
	if root == nil {
		env["doc"] = nil
		return env
	}
	snap := root.Snapshot()
	if m, ok := snap.(map[string]any); ok {
		maps.Copy(env, m)
	}
	env["doc"] = snap
	return env
}

func lookup(root tome.Node, p string) (tome.Node, error) {
	if root == nil {
		return nil, tome.ErrPath
	}
	path, err := tome.ParsePath(p)
	if err != nil {
		return nil, err
	}
	return tome.PathValue(root, path)
}

func exprOpts(root tome.Node) []expr.Option {
	return []expr.Option{
		expr.Function("path", func(params ...any) (any, error) {
			n, err := lookup(root, params[0].(string))
			if err != nil {
				return nil, err
			}
			return n.Snapshot(), nil
		},
			new(func(string) any)),
		expr.Function("kind", func(params ...any) (any, error) {
			n, err := lookup(root, params[0].(string))
			if err != nil {
				return nil, err
			}
			return n.Kind().String(), nil
		},
			new(func(string) string)),
		expr.Function("has", func(params ...any) (any, error) {
			_, err := lookup(root, params[0].(string))
			return err == nil, nil
		},
			new(func(string) bool)),
		expr.Function("getenv", func(params ...any) (any, error) {
			return os.Getenv(params[0].(string)), nil
		},
			new(func(string) string)),
	}
}
