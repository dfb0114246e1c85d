// Package utils provides shared helpers used across axiograph's ambient
// stack (config loading, CLI wiring) that aren't specific to any one
// subsystem.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
