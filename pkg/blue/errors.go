package blue

import "errors"

var (
	ErrCorruptHeader          = errors.New("corrupt BLUE header")
	ErrUnsupportedByteOrder   = errors.New("unsupported BLUE byte order")
	ErrUnrecognizedFormat     = errors.New("unrecognized BLUE format")
	ErrCorruptKeywords        = errors.New("corrupt BLUE keywords")
	ErrBitAlignment           = errors.New("bit-packed data not byte aligned")
	ErrTrimRange              = errors.New("trim range out of bounds")
	ErrUnresolvedDetachedPath = errors.New("unresolved detached data path")
	ErrInvalidSubrecord       = errors.New("invalid subrecord")
	ErrUnsupportedValue       = errors.New("unsupported value")
)
