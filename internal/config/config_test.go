package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/databus/internal/event"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "databus.toml", `
debug = true
intercept_errors = true
log = true
log_data = true
flow = "sync"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Debug:           true,
		InterceptErrors: true,
		Log:             true,
		LogData:         true,
		Flow:            "sync",
	}, cfg)
	assert.Equal(t, event.FlowSync, cfg.DefaultFlow())
}

func TestLoad_YAML(t *testing.T) {
	for _, name := range []string{"databus.yaml", "databus.yml"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, "debug: true\nflow: async\n")

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.True(t, cfg.Debug)
			assert.False(t, cfg.Log)
			assert.Equal(t, event.FlowAsync, cfg.DefaultFlow())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyFile(t *testing.T) {
	for _, name := range []string{"empty.toml", "empty.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, ""))
			require.NoError(t, err)
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestLoad_UnknownFormat(t *testing.T) {
	_, err := Load(writeFile(t, "databus.json", "{}"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml syntax", "bad.toml", "debug = = true"},
		{"toml type", "bad.toml", `debug = "yes"`},
		{"toml unknown key", "bad.toml", "verbose = true"},
		{"yaml syntax", "bad.yaml", "debug: [true"},
		{"yaml unknown key", "bad.yaml", "verbose: true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)

			_, err := Load(path)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, path, pe.Path)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestLoad_TOMLErrorPosition(t *testing.T) {
	path := writeFile(t, "bad.toml", "debug = true\nflow = = 1\n")

	_, err := Load(path)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Positive(t, pe.Column)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		flow    string
		wantErr bool
	}{
		{"", false},
		{"sync", false},
		{"async", false},
		{"SYNC", false},
		{"synchronous", false},
		{"later", true},
	}

	for _, tt := range tests {
		t.Run(tt.flow, func(t *testing.T) {
			err := Config{Flow: tt.flow}.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidationFailed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoad_InvalidFlow(t *testing.T) {
	_, err := Load(writeFile(t, "databus.toml", `flow = "later"`))
	require.ErrorIs(t, err, ErrValidationFailed)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "flow", ve.Field)
}

func TestOptions(t *testing.T) {
	cfg := Config{Flow: "sync", InterceptErrors: true}
	bus := event.New(cfg.Options()...)
	defer bus.Close(context.Background())

	var got []string
	bus.Subscribe("e", event.NewListener(func(p any, info event.DispatchInfo) error {
		got = append(got, p.(string))
		assert.False(t, info.Async)
		return nil
	}))

	require.NoError(t, bus.Trigger("e", "now"))
	assert.Equal(t, []string{"now"}, got)
}
