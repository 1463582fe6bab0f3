package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	encoded, err := Marshal(&payload{Name: "peel", Count: 3})
	require.NoError(t, err)

	var decoded payload
	require.NoError(t, Unmarshal(encoded, &decoded))
	assert.Equal(t, "peel", decoded.Name)
	assert.Equal(t, 3, decoded.Count)
}

func TestUnmarshalConfigFromMap(t *testing.T) {
	type limits struct {
		MaxBodySize int `json:"max_body_size"`
	}

	params := map[string]interface{}{"max_body_size": 2048}

	var cfg limits
	require.NoError(t, UnmarshalConfig(params, &cfg))
	assert.Equal(t, 2048, cfg.MaxBodySize)
}

func TestUnmarshalConfigNil(t *testing.T) {
	var cfg struct{}
	assert.Error(t, UnmarshalConfig(nil, &cfg))
}

func TestUnmarshalConfigTypedPassthrough(t *testing.T) {
	type limits struct {
		MaxBodySize int `json:"max_body_size"`
	}

	src := &limits{MaxBodySize: 16}
	var cfg limits
	require.NoError(t, UnmarshalConfig(src, &cfg))
	assert.Equal(t, 16, cfg.MaxBodySize)
}
