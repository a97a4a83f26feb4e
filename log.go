package filezilla

import (
	"context"
	"log/slog"
)

// Level places the seven levels of this layer's log taxonomy (spec.md 6)
// on log/slog's four-level scale: debug_warning and error reuse slog's
// Warn and Error, while debug_verbose, debug_info, command, reply and
// status sit at offsets around Debug and Info. This mirrors the teacher's own
// fs/log package, which extends slog with named levels (Notice, Critical,
// Alert, Emergency) rather than adopting a third-party logging façade —
// see DESIGN.md for why log/slog, not a library, backs this.
type Level slog.Level

const (
	LevelVerbose     = Level(slog.LevelDebug - 2)
	LevelDebugInfo   = Level(slog.LevelDebug + 2)
	LevelCommand     = Level(slog.LevelInfo - 2)
	LevelReply       = Level(slog.LevelInfo - 1)
	LevelStatus      = Level(slog.LevelInfo + 2)
	LevelDebugWarn   = Level(slog.LevelWarn)
	LevelError       = Level(slog.LevelError)
)

func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "debug_verbose"
	case LevelDebugInfo:
		return "debug_info"
	case LevelCommand:
		return "command"
	case LevelReply:
		return "reply"
	case LevelStatus:
		return "status"
	case LevelDebugWarn:
		return "debug_warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the downward logging interface named in spec.md 6. It wraps a
// *slog.Logger rather than introducing a third-party logging dependency.
type Logger struct {
	base *slog.Logger
}

// NewLogger wraps base, or slog.Default() if base is nil.
func NewLogger(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// Log records a line at the given level, in the style of the original's
// log(logmsg::level, text) calls.
func (l *Logger) Log(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.base.Log(context.Background(), slog.Level(level), sprintfIfNeeded(format, args...))
}

func (l *Logger) Reply(format string, args ...any)      { l.Log(LevelReply, format, args...) }
func (l *Logger) Error(format string, args ...any)       { l.Log(LevelError, format, args...) }
func (l *Logger) DebugWarning(format string, args ...any) { l.Log(LevelDebugWarn, format, args...) }
func (l *Logger) DebugInfo(format string, args ...any)   { l.Log(LevelDebugInfo, format, args...) }
func (l *Logger) DebugVerbose(format string, args ...any) { l.Log(LevelVerbose, format, args...) }
func (l *Logger) Command(format string, args ...any)     { l.Log(LevelCommand, format, args...) }
func (l *Logger) Status(format string, args ...any)      { l.Log(LevelStatus, format, args...) }

func sprintfIfNeeded(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return sprintf(format, args...)
}
