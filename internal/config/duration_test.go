package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "compound", input: "1h30m", expected: 90 * time.Minute},
		{name: "empty", input: `""`, expected: 0},
		{name: "invalid", input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var d Duration
			err := yaml.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	original := Duration(90 * time.Second)

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded Duration
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	t.Run("marshal", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(Duration(45 * time.Second))
		require.NoError(t, err)
		assert.Equal(t, `"45s"`, string(data))
	})

	t.Run("unmarshal", func(t *testing.T) {
		t.Parallel()
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(`"2m"`), &d))
		assert.Equal(t, 2*time.Minute, d.Duration())
	})

	t.Run("null", func(t *testing.T) {
		t.Parallel()
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(`null`), &d))
		assert.Equal(t, time.Duration(0), d.Duration())
	})
}
