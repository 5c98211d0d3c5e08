package logging

import (
	"os"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// New builds the process logger. An unknown level falls back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// RequestLogger logs one line per HTTP request.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}
