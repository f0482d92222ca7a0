package shared

import "fmt"

// ProcessingLockKey builds the redis key guarding a payroll run for a period.
func ProcessingLockKey(periodID int64) string {
	return fmt.Sprintf("processing:%d", periodID)
}
