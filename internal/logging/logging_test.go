package logging

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoTextStderr(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	require.Equal(t, os.Stderr, logger.Out)
}

func TestNewParsesLevel(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level"})
	require.Error(t, err)
}

func TestNewJSONFormatter(t *testing.T) {
	logger, err := New(Config{JSON: true})
	require.NoError(t, err)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/zcm.log"

	logger, err := New(Config{File: path})
	require.NoError(t, err)

	logger.Info("hello from the logging test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello from the logging test")
}
