package fsm

import "github.com/sirupsen/logrus"

// logger is the package-level structured logger used for best-effort
// diagnostics: RemoveFile logs a failed recursive child removal through it
// at Warn level and carries on with the parent's cleanup. Nothing else in
// the package logs.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger overrides the package-level logger, for callers embedding fsm
// in a larger service with its own structured logging setup.
func SetLogger(l logrus.FieldLogger) {
	logger = l
}
