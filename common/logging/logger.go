// Package logging configures the process-wide logrus instance: UTC
// timestamps, JSON or color text formatting, and an optional daily-rotated
// file sink, grounded on the teacher's common/logging/logger.go.
package logging

import (
	"os"
	"path"
	"time"

	"github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Time = entry.Time.UTC()
	return f.Formatter.Format(entry)
}

// Setup configures the global logrus instance. dir == "" disables the
// file sink; only stdout logging is configured.
func Setup(dir string, colors bool, json bool, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	var lineFormatter logrus.Formatter
	if json {
		lineFormatter = &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000 Z07:00",
		}
	} else {
		lineFormatter = &logrus.TextFormatter{
			TimestampFormat:  "2006-01-02 15:04:05.000 Z07:00",
			FullTimestamp:    true,
			ForceColors:      colors,
			DisableColors:    !colors,
			QuoteEmptyFields: true,
		}
	}
	formatter := &utcFormatter{lineFormatter}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	if dir == "" || dir == "-" {
		return nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	logFile := path.Join(dir, "cytrus-updater.log")
	writer, err := rotatelogs.New(
		logFile+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(24*time.Hour*14),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return err
	}

	logrus.AddHook(lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, formatter))

	return nil
}

// SendToDebugLogger adapts logrus to the plain Logger interface a couple
// of third-party libraries (gomigrate, ants) expect for their own internal
// diagnostics, routed to Debug so it doesn't compete with our own
// application-level logging at info and above.
type SendToDebugLogger struct{}

func (*SendToDebugLogger) Print(v ...interface{})                 { logrus.Debug(v...) }
func (*SendToDebugLogger) Printf(format string, v ...interface{}) { logrus.Debugf(format, v...) }
func (*SendToDebugLogger) Println(v ...interface{})               { logrus.Debugln(v...) }
func (*SendToDebugLogger) Fatalf(format string, v ...interface{}) { logrus.Fatalf(format, v...) }
