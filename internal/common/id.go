package common

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewScanID generates a scan identifier of the form
// scan_<unixSeconds>_<first 8 hex of md5(domain)>.
// Deterministic enough for log correlation; unique per (domain, second).
func NewScanID(domain string) string {
	sum := md5.Sum([]byte(domain))
	return fmt.Sprintf("scan_%d_%s", time.Now().Unix(), hex.EncodeToString(sum[:])[:8])
}

// NewScheduleID generates a unique schedule ID with the "sched_" prefix
func NewScheduleID() string {
	return "sched_" + uuid.New().String()
}

// NewExecutionID generates a unique schedule-execution ID with the "exec_" prefix
func NewExecutionID() string {
	return "exec_" + uuid.New().String()
}

// NewLockToken generates an opaque instance token for distributed lock values
func NewLockToken() string {
	return uuid.New().String()
}
