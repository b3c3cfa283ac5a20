package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestInit_ModuleField(t *testing.T) {
	hook := &test.Hook{}
	AddHook(hook)

	Init("consumer", "debug")
	WithFields(Fields{"event": "probe"}).Debug("hello")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "consumer", entry.Data["module"])
	assert.Equal(t, "probe", entry.Data["event"])
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, logrus.DebugLevel, base.GetLevel())
}
