package schema

import (
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/stamp"
)

// Pattern is a filename template declared per data type. Literal text is
// kept as-is; placeholders substitute the logical id and the stamp:
//
//	{id}         the logical id verbatim
//	{id.snake}   product_x
//	{id.kebab}   product-x
//	{id.camel}   productX
//	{id.pascal}  ProductX
//	{stamp}      the wire form, e.g. 230421
//
// A pattern must reference the id (in some form) and the stamp, otherwise
// two artifacts could share a filename and addresses would stop being
// injective.
type Pattern struct {
	raw      string
	segments []patternSegment
}

type patternSegment struct {
	literal string
	verb    string // "", or one of the placeholder verbs
}

const (
	verbID       = "id"
	verbIDSnake  = "id.snake"
	verbIDKebab  = "id.kebab"
	verbIDCamel  = "id.camel"
	verbIDPascal = "id.pascal"
	verbStamp    = "stamp"
)

// ParsePattern parses and validates a filename pattern.
func ParsePattern(raw string) (Pattern, error) {
	if strings.TrimSpace(raw) == "" {
		return Pattern{}, errors.New("filename pattern is blank")
	}
	if strings.ContainsAny(raw, "/\\") {
		return Pattern{}, errors.Newf("filename pattern %q: path separators not allowed", raw)
	}

	var segments []patternSegment
	hasID, hasStamp := false, false

	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			segments = append(segments, patternSegment{literal: rest})
			break
		}
		if open > 0 {
			segments = append(segments, patternSegment{literal: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return Pattern{}, errors.Newf("filename pattern %q: unclosed placeholder", raw)
		}
		verb := rest[open+1 : open+closing]
		switch verb {
		case verbID, verbIDSnake, verbIDKebab, verbIDCamel, verbIDPascal:
			hasID = true
		case verbStamp:
			hasStamp = true
		default:
			return Pattern{}, errors.Newf("filename pattern %q: unknown placeholder {%s}", raw, verb)
		}
		segments = append(segments, patternSegment{verb: verb})
		rest = rest[open+closing+1:]
	}

	if !hasID {
		return Pattern{}, errors.Newf("filename pattern %q: must reference {id}", raw)
	}
	if !hasStamp {
		return Pattern{}, errors.Newf("filename pattern %q: must reference {stamp}", raw)
	}

	return Pattern{raw: raw, segments: segments}, nil
}

// Render produces the filename for one (logical id, stamp) pair.
func (p Pattern) Render(logicalID string, at stamp.Stamp) string {
	var b strings.Builder
	for _, seg := range p.segments {
		switch seg.verb {
		case "":
			b.WriteString(seg.literal)
		case verbID:
			b.WriteString(logicalID)
		case verbIDSnake:
			b.WriteString(strcase.ToSnake(logicalID))
		case verbIDKebab:
			b.WriteString(strcase.ToKebab(logicalID))
		case verbIDCamel:
			b.WriteString(strcase.ToLowerCamel(logicalID))
		case verbIDPascal:
			b.WriteString(strcase.ToCamel(logicalID))
		case verbStamp:
			b.WriteString(at.String())
		}
	}
	return b.String()
}

// String returns the raw declaration text.
func (p Pattern) String() string { return p.raw }

// IsZero reports whether the pattern was never parsed.
func (p Pattern) IsZero() bool { return p.raw == "" }
