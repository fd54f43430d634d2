package tome

import (
	"fmt"

	"github.com/mage/mage-sdk-go/debug"
)

// Op is one diff operation: the operation code Op applied with operand Val
// to the node found by following Chain from the document root.
type Op struct {
	Chain []any  `json:"chain"`
	Op    string `json:"op"`
	Val   any    `json:"val,omitempty"`
}

// ParseOps decodes a JSON array of diff operations.
func ParseOps(d []byte) ([]Op, error) {
	var ops []Op
	if err := unmarshalJSON(d, &ops); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOperand, err)
	}
	return ops, nil
}

// ApplyDiff applies ops in order. The first operation which cannot be
// applied is logged and returned as an *OpError; the operations after it are
// not applied.
func (d *Document) ApplyDiff(ops []Op) error {
	for i := range ops {
		if err := d.applyOp(&ops[i]); err != nil {
			d.log.Error("failed to apply diff operation",
				"index", i, "op", ops[i].Op, "chain", ops[i].Chain, "val", ops[i].Val, "error", err)
			return &OpError{Index: i, Op: ops[i], Err: err}
		}
	}
	return nil
}

func (d *Document) applyOp(op *Op) error {
	path, err := PathFrom(op.Chain)
	if err != nil {
		return err
	}
	val, err := normalize(op.Val)
	if err != nil {
		return err
	}
	if debug.Diff() {
		debug.Logf("tome: %s at %q\n", op.Op, path.String())
	}
	d.mu.Lock()
	defer d.unlock()
	target, err := resolve(d.root, path)
	if err != nil {
		return err
	}
	return applyOperation(target, op.Op, val)
}

// ApplyDiff applies ops to the document of root.
func ApplyDiff(root Node, ops []Op) error {
	return root.Document().ApplyDiff(ops)
}
