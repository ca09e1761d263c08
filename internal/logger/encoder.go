package logger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "15:04:05"

var (
	pool = buffer.NewPool()

	// Only fields are rendered by the embedded encoder. Time, level, name and message are written by
	// consoleEncoder itself.
	fieldEncoderConfig = zapcore.EncoderConfig{
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
	}

	levelColors = map[zapcore.Level]*color.Color{
		zapcore.DPanicLevel: color.New(color.FgHiRed),
		zapcore.PanicLevel:  color.New(color.FgHiRed),
		zapcore.FatalLevel:  color.New(color.FgRed),
		zapcore.ErrorLevel:  color.New(color.FgRed),
		zapcore.WarnLevel:   color.New(color.FgYellow),
		zapcore.InfoLevel:   color.New(color.FgBlue),
		zapcore.DebugLevel:  color.New(color.FgMagenta),
	}

	namePattern string
	fieldIndent string
)

func init() {
	var l int
	for n := range domainFromString {
		l = max(l, len(n))
	}
	namePattern = fmt.Sprintf("%%-%ds ", l)
	// Time, a space, the padded level, a space and the padded domain name.
	fieldIndent = strings.Repeat(" ", len(timeLayout)+1+7+1+l+1)
}

type consoleEncoder struct {
	zapcore.Encoder
}

func newEncoder() *consoleEncoder {
	return &consoleEncoder{Encoder: zapcore.NewJSONEncoder(fieldEncoderConfig)}
}

func (e *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{Encoder: e.Encoder.Clone()}
}

func (e *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := pool.Get()

	line.AppendString(ent.Time.Format(timeLayout))
	line.AppendByte(' ')
	line.AppendString(colorFor(ent.Level).Sprintf("%-7s", ent.Level.CapitalString()))
	line.AppendByte(' ')
	line.AppendString(fmt.Sprintf(namePattern, ent.LoggerName))
	line.AppendString(ent.Message)

	// Info lines are what users read during normal operation so they stay free of fields.
	if ent.Level == zapcore.InfoLevel {
		line.AppendByte('\n')
		return line, nil
	}

	encoded, err := e.Encoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		line.Free()
		return nil, err
	}
	defer encoded.Free()

	if f := bytes.TrimSpace(encoded.Bytes()); len(f) > 0 && !bytes.Equal(f, []byte("{}")) {
		line.AppendByte('\n')
		line.AppendString(fieldIndent)
		_, _ = line.Write(f)
	}
	line.AppendByte('\n')
	return line, nil
}

func colorFor(l zapcore.Level) *color.Color {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return color.New(color.Reset)
}
