package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name    string `json:"name"`
	Retries int    `json:"retries"`
	Debug   bool   `json:"debug"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sampleConfig{Name: "cache", Retries: 3, Debug: true}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"cache","retries":3,"debug":true}`, string(data))

	var out sampleConfig
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalCopiesOutOfPooledBuffer(t *testing.T) {
	first, err := Marshal(map[string]string{"a": "1"})
	require.NoError(t, err)
	snapshot := string(first)

	// A second marshal reuses the pooled buffer; the first result must
	// not be clobbered.
	_, err = Marshal(map[string]string{"b": "2222222222"})
	require.NoError(t, err)

	assert.Equal(t, snapshot, string(first))
}

func TestMarshalToBuffer(t *testing.T) {
	buf := bytes.NewBuffer([]byte("stale"))
	require.NoError(t, MarshalToBuffer([]int{1, 2, 3}, buf))

	// Encoder.Encode appends a trailing newline.
	assert.Equal(t, "[1,2,3]\n", buf.String())
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"hits": 4})
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"hits\": 4")
}

func TestUnmarshalConfig(t *testing.T) {
	var target sampleConfig

	err := UnmarshalConfig(map[string]interface{}{"name": "demo", "retries": 7}, &target)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig{Name: "demo", Retries: 7}, target)

	// Untouched keys keep their previous values.
	err = UnmarshalConfig(map[string]interface{}{"debug": true}, &target)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig{Name: "demo", Retries: 7, Debug: true}, target)
}

func TestUnmarshalConfigTypedPassthrough(t *testing.T) {
	source := &sampleConfig{Name: "direct"}

	var target sampleConfig
	require.NoError(t, UnmarshalConfig(source, &target))
	assert.Equal(t, *source, target)
}

func TestUnmarshalConfigErrors(t *testing.T) {
	var target sampleConfig
	assert.Error(t, UnmarshalConfig(nil, &target))
	assert.Error(t, UnmarshalConfig(map[string]interface{}{"retries": "many"}, &target))
}