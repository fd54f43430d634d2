package vault

import "errors"

var (
	ErrNoData  = errors.New("vault value has no data")
	ErrMessage = errors.New("malformed vault message")
)
