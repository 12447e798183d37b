package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-engine/internal/config"
)

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	require.NoError(t, Configure(l, config.LogConfig{Level: "debug", Format: "json"}, &buf))

	l.WithField("form", "contact").Debug("hello")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "contact", entry["form"])
	assert.Equal(t, "debug", entry["level"])
}

func TestConfigure_DefaultsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	require.NoError(t, Configure(l, config.LogConfig{}, &buf))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	assert.Error(t, Configure(l, config.LogConfig{Level: "loud"}, &buf))
	assert.Error(t, Configure(l, config.LogConfig{Format: "xml"}, &buf))
}
