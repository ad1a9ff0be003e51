package logger

import (
	"io"

	"github.com/rs/zerolog"
)

type ZerologLogger struct {
	log zerolog.Logger
}

var zerologLevels = map[string]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// NewZerologLogger writes JSON lines to w. Pass a zerolog.ConsoleWriter for
// human readable output.
func NewZerologLogger(w io.Writer, level string) Logger {
	log := zerolog.New(w).
		Level(zerologLevels[normalizeLevel(level)]).
		With().Timestamp().Logger()
	return &ZerologLogger{log: log}
}

func (z *ZerologLogger) Debug(msg string, fields map[string]any) {
	z.emit(z.log.Debug(), msg, fields)
}

func (z *ZerologLogger) Info(msg string, fields map[string]any) {
	z.emit(z.log.Info(), msg, fields)
}

func (z *ZerologLogger) Warn(msg string, fields map[string]any) {
	z.emit(z.log.Warn(), msg, fields)
}

func (z *ZerologLogger) Error(msg string, fields map[string]any) {
	z.emit(z.log.Error(), msg, fields)
}

func (z *ZerologLogger) emit(ev *zerolog.Event, msg string, fields map[string]any) {
	for _, k := range sortedKeys(fields) {
		if err, ok := fields[k].(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, fields[k])
	}
	ev.Msg(msg)
}
