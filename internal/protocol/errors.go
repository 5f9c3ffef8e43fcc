package protocol

import "errors"

var (
	ErrUnknownRecordKind = errors.New("protocol: unknown record kind")
	ErrFieldCount        = errors.New("protocol: wrong field count")
	ErrEmptyRecord       = errors.New("protocol: empty record")
)
