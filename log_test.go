package tide_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coastlinevibe/tide"
)

func TestStdLogger_with(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})

	cleanLogger := tide.NewStdLoggerWithOut(buf, true, true)

	withLogFieldsLogger := cleanLogger.With(tide.LogFields{"foo": "1"})

	for name, logger := range map[string]tide.LoggerAdapter{"clean": cleanLogger, "with": withLogFieldsLogger} {
		logger.Error(name, nil, tide.LogFields{"bar": "2"})
		logger.Info(name, tide.LogFields{"bar": "2"})
		logger.Debug(name, tide.LogFields{"bar": "2"})
		logger.Trace(name, tide.LogFields{"bar": "2"})
	}

	cleanLoggerOut := buf.String()
	assert.Contains(t, cleanLoggerOut, `level=ERROR msg="clean" bar=2 err=<nil>`)
	assert.Contains(t, cleanLoggerOut, `level=INFO  msg="clean" bar=2`)
	assert.Contains(t, cleanLoggerOut, `level=TRACE msg="clean" bar=2`)

	assert.Contains(t, cleanLoggerOut, `level=ERROR msg="with" bar=2 err=<nil> foo=1`)
	assert.Contains(t, cleanLoggerOut, `level=INFO  msg="with" bar=2 foo=1`)
	assert.Contains(t, cleanLoggerOut, `level=TRACE msg="with" bar=2 foo=1`)
}

func TestCaptureLogger(t *testing.T) {
	logger := tide.NewCaptureLogger()

	scoped := logger.With(tide.LogFields{"component": "store"})
	scoped.Info("record added", tide.LogFields{"post_id": "post-1"})

	assert.True(t, logger.Has(tide.CapturedMessage{
		Level:  tide.InfoLogLevel,
		Fields: tide.LogFields{"component": "store", "post_id": "post-1"},
		Msg:    "record added",
	}))

	assert.False(t, logger.Has(tide.CapturedMessage{
		Level: tide.ErrorLogLevel,
		Msg:   "record added",
	}))
}
