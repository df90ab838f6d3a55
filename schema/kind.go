package schema

import (
	"strconv"
	"strings"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
)

// Kind constrains the values of one column. Kinds apply per cell; blank
// cells are exempt everywhere, since blank means "not filled" and the
// annotation policy depends on that reading.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindStamp  Kind = "stamp"
)

// ParseKind validates a kind name from a declaration.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindString, KindNumber, KindBool, KindStamp:
		return Kind(s), nil
	default:
		return "", errors.Newf("unknown column kind %q (want string, number, bool, or stamp)", s)
	}
}

// Accepts reports whether value satisfies the kind. Blank values are
// accepted for every kind.
func (k Kind) Accepts(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	switch k {
	case KindString:
		return true
	case KindNumber:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case KindBool:
		_, err := strconv.ParseBool(v)
		return err == nil
	case KindStamp:
		_, err := stamp.ParseAny(v)
		return err == nil
	default:
		return false
	}
}
