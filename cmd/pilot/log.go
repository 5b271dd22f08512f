package main

import "github.com/entrhq/pilot/pkg/logging"

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("pilot")
	if err != nil {
		debugLog.Warnf("Failed to initialize pilot logger, using stderr fallback: %v", err)
	}
}
