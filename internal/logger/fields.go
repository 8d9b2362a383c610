package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func Attempt(v int) zap.Field { return zap.Int("attempt", v) }

// Backend is the resolved base URL a call or probe went to.
func Backend(v string) zap.Field { return zap.String("backend", v) }

// Call context

func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func CorrelationID(v string) zap.Field { return zap.String("correlation_id", v) }

func Client(v string) zap.Field { return zap.String("client", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

// Bus

func Subject(v string) zap.Field { return zap.String("subject", v) }

func Topic(v string) zap.Field { return zap.String("topic", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// ErrorKind records the normalized kind of a failure.
func ErrorKind(v string) zap.Field { return zap.String("error_kind", v) }

func Err(err error) zap.Field { return zap.Error(err) }
