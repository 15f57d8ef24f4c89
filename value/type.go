// Package value implements the Catbus typed-value codec: the fixed set
// of primitive parameter types, their wire sizes, and conversion between
// any two of them.
//
// See SPEC_FULL.md §4.1.
package value

import "strconv"

// Type is the type code of a Catbus parameter value.
type Type uint8

// The fixed set of primitive parameter types.
const (
	TypeNone Type = iota // 0: "same as the entry's native type" in get/set
	TypeBool
	TypeUint8
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeUint64
	TypeInt64
	TypeFloat32
	TypeString32  // fixed-length 32-byte string
	TypeString128 // fixed-length 128-byte string
	TypeIPv4
	TypeMAC48
	TypeHash32

	// TypeInvalid is a sentinel code outside the size table; String
	// reports it as "TYPE_INVALID".
	TypeInvalid Type = 0xff
)

const (
	_TypeName = "TYPE_NONETYPE_BOOLTYPE_UINT8TYPE_INT8TYPE_UINT16TYPE_INT16TYPE_UINT32TYPE_INT32TYPE_UINT64TYPE_INT64TYPE_FLOAT32TYPE_STRING32TYPE_STRING128TYPE_IPV4TYPE_MAC48TYPE_HASH32"
)

var typeNameOffsets = [...]int{0, 9, 18, 28, 37, 48, 58, 69, 79, 90, 100, 112, 125, 139, 148, 158, 169}

// String returns the canonical name of the type, or "TYPE_INVALID" /
// a numeric fallback for unrecognized codes.
func (t Type) String() string {
	if t == TypeInvalid {
		return "TYPE_INVALID"
	}
	i := int(t)
	if i < 0 || i+1 >= len(typeNameOffsets) {
		return "TYPE<" + strconv.Itoa(int(t)) + ">"
	}
	return _TypeName[typeNameOffsets[i]:typeNameOffsets[i+1]]
}

// sizeTable maps each Type to its fixed byte width.
var sizeTable = map[Type]int{
	TypeBool:      1,
	TypeUint8:     1,
	TypeInt8:      1,
	TypeUint16:    2,
	TypeInt16:     2,
	TypeUint32:    4,
	TypeInt32:     4,
	TypeUint64:    8,
	TypeInt64:     8,
	TypeFloat32:   4,
	TypeString32:  32,
	TypeString128: 128,
	TypeIPv4:      4,
	TypeMAC48:     6,
	TypeHash32:    4,
}

// MaxTypeLen is the widest fixed byte size of any Type, used to size
// persistence-file payload records (SPEC_FULL.md §3).
const MaxTypeLen = 128

// SizeOf returns the byte width of t, or an error for an unknown type.
func SizeOf(t Type) (int, error) {
	if t == TypeNone {
		return 0, nil
	}
	size, ok := sizeTable[t]
	if !ok {
		return 0, ErrUnknownType
	}
	return size, nil
}

// IsValid reports whether t is a known, addressable type (TypeNone is
// considered valid as a "native type" shorthand).
func IsValid(t Type) bool {
	if t == TypeNone {
		return true
	}
	_, ok := sizeTable[t]
	return ok
}
