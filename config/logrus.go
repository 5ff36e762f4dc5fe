package config

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/zqywuxie/invoice-management/appctx"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logrus.InfoLevel)
	logg.SetOutput(os.Stdout)

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			logg.SetLevel(parsed)
		}
	}
}

// LogError emits one structured error line. Request-scoped fields (the
// correlation id set by the HTTP middleware) ride along when present in ctx.
func LogError(ctx context.Context, logger *logrus.Logger, moduleName string, funcName string, contextInfo string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  contextInfo,
	}
	if data != nil {
		fields["data"] = data
	}
	if cid, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && cid != "" {
		fields["correlationId"] = cid
	}
	logger.WithFields(fields).Error(err.Error())
}
