package model

import "time"

// Shared defaults used by both the service and dashboard binaries.
const (
	DefaultStoreKey        = "logData"
	DefaultRefreshInterval = 5 * time.Minute
	DefaultSourcePath      = "/data/adb/modules/Clean-C/log.txt"

	// RetentionDays is the size of the rolling window: today and the 6 days before it.
	RetentionDays = 7

	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)
