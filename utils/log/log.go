package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// BuildLogger crea el logger JSON de cada módulo con el nivel indicado en la configuración
func BuildLogger(level string) *slog.Logger {
	nivel := &slog.LevelVar{}
	nivel.Set(ParseLevel(level))
	return BuildLoggerWithLevel(nivel)
}

// BuildLoggerWithLevel permite cambiar el nivel en caliente (por ejemplo al recargar la configuración)
func BuildLoggerWithLevel(level *slog.LevelVar) *slog.Logger {
	ops := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, ops))
}

// ParseLevel traduce el log_level de la configuración. Si no se reconoce, usa INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

func StringAttr(key, value string) slog.Attr {
	return slog.String(key, value)
}

func IntAttr(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

func BoolAttr(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

func AnyAttr(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// HexAttr loguea direcciones en hexadecimal (0x...)
func HexAttr(key string, value uint64) slog.Attr {
	return slog.String(key, fmt.Sprintf("%#x", value))
}
