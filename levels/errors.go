package levels

import (
	"errors"
	"fmt"
)

var (
	ErrDecode = errors.New("levels: decode failed")
	ErrEncode = errors.New("levels: encode failed")

	ErrMissingField    = errors.New("missing required field")
	ErrInvalidRotation = errors.New("invalid sprite_angle")
)

// DecodeError is returned by Decode. Path names the offending element or
// attribute when it is known, e.g. "sfm_map[1]/objects/object[4]/@x".
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("levels: decode: %v", e.Err)
	}
	return fmt.Sprintf("levels: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// EncodeError is returned by Encode when a Level cannot be written.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("levels: encode: %v", e.Err)
	}
	return fmt.Sprintf("levels: encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncode, e.Err}
}

func missing(path string) error {
	return &DecodeError{Path: path, Err: ErrMissingField}
}
