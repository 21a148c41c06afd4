package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	log  *slog.Logger
	once sync.Once
)

func Init() {
	once.Do(func() {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})
}

func fieldsToAttrs(fields map[string]interface{}) []any {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func Info(event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Info(event, fieldsToAttrs(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Warn(event, fieldsToAttrs(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	attrs := fieldsToAttrs(fields)
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	log.Error(event, attrs...)
}

func InfoWithUser(userID string, event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	attrs := append(fieldsToAttrs(fields), "user_id", userID)
	log.Info(event, attrs...)
}

func WarnWithUser(userID string, event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	attrs := append(fieldsToAttrs(fields), "user_id", userID)
	log.Warn(event, attrs...)
}
