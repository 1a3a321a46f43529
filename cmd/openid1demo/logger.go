package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dexidp/openid1/pkg/log"
)

var logLevels = []string{"debug", "info", "warn", "error"}

func newLogger(levelStr, format string) (log.Logger, error) {
	level := logrus.InfoLevel
	if levelStr != "" {
		parsed, err := logrus.ParseLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("log level is not one of the supported values (%s): %s", strings.Join(logLevels, ", "), levelStr)
		}
		level = parsed
	}

	base := logrus.New()
	base.Level = level
	switch strings.ToLower(format) {
	case "", "text":
		base.Formatter = &logrus.TextFormatter{DisableColors: true}
	case "json":
		base.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("log format is not one of the supported values (json, text): %s", format)
	}

	return log.NewLogrusLogger(base), nil
}
