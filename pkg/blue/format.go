package blue

import "fmt"

// TypeCode is the element-type character of a format code (the second
// character, eg the 'F' in "SF").
type TypeCode byte

const (
	TypeBit     TypeCode = 'P'
	TypeInt8    TypeCode = 'B'
	TypeUint8   TypeCode = 'O'
	TypeInt16   TypeCode = 'I'
	TypeUint16  TypeCode = 'U'
	TypeInt32   TypeCode = 'L'
	TypeUint32  TypeCode = 'V'
	TypeInt64   TypeCode = 'X'
	TypeFloat32 TypeCode = 'F'
	TypeFloat64 TypeCode = 'D'
	TypeASCII   TypeCode = 'A'

	// TypeMixed marks a non-homogeneous record format ("NH").
	TypeMixed TypeCode = 'H'
)

// asciiWidth is the byte width of one 'A' scalar.
const asciiWidth = 8

// Bits returns the on-disk width of one scalar in bits.
func (t TypeCode) Bits() (int, error) {
	switch t {
	case TypeBit:
		return 1, nil
	case TypeInt8, TypeUint8:
		return 8, nil
	case TypeInt16, TypeUint16:
		return 16, nil
	case TypeInt32, TypeUint32, TypeFloat32:
		return 32, nil
	case TypeInt64, TypeFloat64:
		return 64, nil
	case TypeASCII:
		return asciiWidth * 8, nil
	default:
		return 0, fmt.Errorf("%w: type %q", ErrUnrecognizedFormat, rune(t))
	}
}

// Size returns the byte width of one scalar. Bit-packed scalars report 0.
func (t TypeCode) Size() int {
	b, err := t.Bits()
	if err != nil {
		return 0
	}
	return b / 8
}

// Numeric reports whether t decodes to a Go numeric slice.
func (t TypeCode) Numeric() bool {
	switch t {
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeInt64, TypeFloat32, TypeFloat64:
		return true
	default:
		return false
	}
}

func (t TypeCode) String() string {
	switch t {
	case TypeBit:
		return "bit"
	case TypeInt8:
		return "i8"
	case TypeUint8:
		return "u8"
	case TypeInt16:
		return "i16"
	case TypeUint16:
		return "u16"
	case TypeInt32:
		return "i32"
	case TypeUint32:
		return "u32"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeASCII:
		return "ascii"
	case TypeMixed:
		return "mixed"
	default:
		return fmt.Sprintf("type(%q)", rune(t))
	}
}

// Mode is the first character of a format code: how many scalars form an atom.
type Mode byte

const (
	ModeScalar    Mode = 'S'
	ModeComplex   Mode = 'C'
	ModeVector    Mode = 'V'
	ModeQuad      Mode = 'Q'
	ModeMatrix    Mode = 'M'
	ModeTransform Mode = 'T'
	ModeTen       Mode = 'X'
	ModeRecord    Mode = 'N'
)

// Scalars returns the scalars-per-atom count of the mode.
func (m Mode) Scalars() (int, error) {
	switch m {
	case ModeScalar, ModeRecord:
		return 1, nil
	case ModeComplex:
		return 2, nil
	case ModeVector:
		return 3, nil
	case ModeQuad:
		return 4, nil
	case ModeMatrix:
		return 9, nil
	case ModeTen:
		return 10, nil
	case ModeTransform:
		return 16, nil
	case '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return int(m - '0'), nil
	default:
		return 0, fmt.Errorf("%w: mode %q", ErrUnrecognizedFormat, rune(m))
	}
}

// Format is a two-character mode/type code such as "SF" or "CI".
type Format string

// FormatMixed is the non-homogeneous record format.
const FormatMixed Format = "NH"

// ParseFormat validates a format string and returns it.
func ParseFormat(s string) (Format, error) {
	if len(s) != 2 {
		return "", fmt.Errorf("%w: format %q must be two characters", ErrUnrecognizedFormat, s)
	}
	f := Format(s)
	if f == FormatMixed {
		return f, nil
	}
	if _, err := f.Mode().Scalars(); err != nil {
		return "", err
	}
	if _, err := f.Type().Bits(); err != nil {
		return "", err
	}
	return f, nil
}

// Mode returns the mode character, or 0 for malformed formats.
func (f Format) Mode() Mode {
	if len(f) != 2 {
		return 0
	}
	return Mode(f[0])
}

// Type returns the type character, or 0 for malformed formats.
func (f Format) Type() TypeCode {
	if len(f) != 2 {
		return 0
	}
	return TypeCode(f[1])
}

// AtomBits returns the width of one atom of f in bits.
func (f Format) AtomBits() (int, error) {
	spa, err := f.Mode().Scalars()
	if err != nil {
		return 0, err
	}
	bits, err := f.Type().Bits()
	if err != nil {
		return 0, err
	}
	return spa * bits, nil
}

// AtomSize returns the width of one atom of f in bytes. Bit-packed formats
// must describe whole bytes to have a byte width.
func (f Format) AtomSize() (int, error) {
	bits, err := f.AtomBits()
	if err != nil {
		return 0, err
	}
	if bits%8 != 0 {
		return 0, fmt.Errorf("%w: format %s is not a whole number of bytes", ErrBitAlignment, f)
	}
	return bits / 8, nil
}
