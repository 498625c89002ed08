package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel logrus.Level
		wantErr   bool
	}{
		{"defaults", DefaultConfig(), logrus.InfoLevel, false},
		{"debug json", Config{Level: "debug", Format: "json"}, logrus.DebugLevel, false},
		{"warn text", Config{Level: "warn", Format: "text"}, logrus.WarnLevel, false},
		{"bad level", Config{Level: "loud"}, 0, true},
		{"bad format", Config{Level: "info", Format: "xml"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := newWithOutput(tt.cfg, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newWithOutput(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.WithField("symbol", "SPY").Info("generated strategies")
	logger.Debug("suppressed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "SPY", entry["symbol"])
	assert.Equal(t, "generated strategies", entry["msg"])
	assert.NotContains(t, buf.String(), "suppressed")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "strategist.log")
	var console bytes.Buffer

	cfg := DefaultConfig()
	cfg.FilePath = path
	logger, closer, err := newWithOutput(cfg, &console)
	require.NoError(t, err)

	logger.Info("written to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to both"))
	assert.Contains(t, console.String(), "written to both")
}
