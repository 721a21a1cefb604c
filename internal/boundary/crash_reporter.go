package boundary

import (
	"github.com/getsentry/sentry-go"
)

// SentryCrashReporter reports errors to Sentry, grounded on the teacher's
// pervasive sentry.CaptureException call sites (e.g. storage/database
// error paths).
type SentryCrashReporter struct{}

func (SentryCrashReporter) Report(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
