// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds engine wide services: configuration, logging
// and frame timing.
package core

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewLogger creates a logger configured by cfg
func NewLogger(cfg LogConfiguration) (*log.Logger, error) {
	logger := log.New()
	logger.Out = os.Stderr

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	logger.SetLevel(lvl)

	if cfg.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
