package log

import (
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxBytesField bounds how much of a []byte value is logged. Mission
// payloads arrive as raw bytes and can be large.
const maxBytesField = 256

// toFields turns a loose key/value list into zap fields.
//
// A zap.Field passes through and a bare error becomes the "error" field.
// Remaining arguments are read as key/value pairs; a trailing value without
// a key is logged as "arg#N", and a non-string key is kept under
// "invalid_key_N" instead of being dropped.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)

	for i := 0; i < len(args); {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(a))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i += 2

		name, ok := key.(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("invalid_key_%d", i/2), map[string]any{
				"key":   key,
				"value": val,
			}))
			continue
		}

		fields = append(fields, field(name, val))
	}

	return fields
}

func field(key string, val any) zap.Field {
	switch v := val.(type) {
	case time.Duration:
		return zap.Duration(key, v)
	case error:
		return zap.NamedError(key, v)
	case []byte:
		return bytesField(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}

// bytesField logs printable payloads as text and everything else as binary,
// truncated to maxBytesField.
func bytesField(key string, b []byte) zap.Field {
	truncated := len(b) > maxBytesField
	if truncated {
		b = b[:maxBytesField]
	}

	if !utf8.Valid(b) {
		return zap.Binary(key, b)
	}
	if truncated {
		return zap.String(key, string(b)+"...")
	}
	return zap.String(key, string(b))
}
