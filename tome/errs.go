package tome

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedOp = errors.New("unsupported operation")
	ErrKind          = errors.New("kind mismatch")
	ErrPath          = errors.New("path not found")
	ErrIndex         = errors.New("index out of range")
	ErrNotFound      = errors.New("key not found")
	ErrOperand       = errors.New("bad operand")
	ErrEmpty         = errors.New("empty list")
	ErrDestroyed     = errors.New("node destroyed")
	ErrCycle         = errors.New("node cannot be placed inside itself")
)

// OpError reports the failure of one operation of a diff batch. Operations
// following Index in the batch were not applied.
type OpError struct {
	Index int
	Op    Op
	Err   error
}

func (e *OpError) Error() string {
	p, err := PathFrom(e.Op.Chain)
	chain := p.String()
	if err != nil {
		chain = fmt.Sprintf("%v", e.Op.Chain)
	}
	return fmt.Sprintf("diff operation %d (%s at %q): %v", e.Index, e.Op.Op, chain, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
