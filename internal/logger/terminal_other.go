//go:build !linux && !darwin

package logger

// Colour is only enabled where terminal detection is supported.
func isTerminal(uintptr) bool { return false }
