package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Muted console palette, easy on the eyes in long runs.
var palette = struct {
	fg       string
	time     string
	name1    string
	name2    string
	id       string
	number   string
	yellow   string
	yellowBg string
	red      string
	redBg    string
}{
	fg:       "\x1b[38;5;223m",
	time:     "\x1b[38;5;107m",
	name1:    "\x1b[38;5;108m",
	name2:    "\x1b[38;5;208m",
	id:       "\x1b[38;5;109m",
	number:   "\x1b[38;5;142m",
	yellow:   "\x1b[38;5;179m",
	yellowBg: "\x1b[48;5;58m",
	red:      "\x1b[38;5;167m",
	redBg:    "\x1b[48;5;52m",
}

// compactEncoder implements a calm, compact console encoder.
// Format: "13:04:35  f.executor  step finished  recompute_plan 42ms"
type compactEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newCompactEncoder() *compactEncoder {
	// Base JSON encoder for field serialization (internal use only)
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	return &compactEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *compactEncoder) Clone() zapcore.Encoder {
	return &compactEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *compactEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(palette.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level label only for WARN and up; INFO stays quiet.
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(componentColor(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(palette.fg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if len(fields) > 0 {
		if rendered := renderFields(fields); rendered != "" {
			final.AppendString("  ")
			final.AppendString(rendered)
		}
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + palette.yellowBg + palette.yellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + palette.redBg + palette.red + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + palette.redBg + palette.red + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// componentColor picks a stable color per component name so related lines
// group visually.
func componentColor(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	if hash%2 == 0 {
		return palette.name1
	}
	return palette.name2
}

// abbreviateName shortens component names: store -> store, flow.executor -> f.executor
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// fieldValue extracts the value from a zap field, handling common field types.
func fieldValue(field zapcore.Field) string {
	if field.Type == zapcore.StringType {
		return field.String
	}

	switch field.Type {
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	}

	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}

	return ""
}

// renderFields pulls just the values of the fields worth surfacing on a
// console line. Everything else stays available in JSON mode.
func renderFields(fields []zapcore.Field) string {
	var values []string

	for _, field := range fields {
		val := fieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldRunID, FieldStep, FieldType, FieldLogicalID, FieldHub:
			values = append(values, palette.id+val+colorReset)
		case FieldStamp:
			values = append(values, palette.number+val+colorReset)
		case FieldRows:
			values = append(values, palette.number+val+colorReset+" rows")
		case FieldDurationMS:
			values = append(values, palette.number+val+colorReset+"ms")
		case FieldError:
			values = append(values, palette.red+val+colorReset)
		}
	}

	return strings.Join(values, " ")
}
