package testutils

import "testing"

var _ TestingT = (*testing.T)(nil)

// TestingT is the part of testing.TB the golden and fixture helpers need.
type TestingT interface {
	Helper()
	Logf(format string, args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}
