package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"name=escrow", "fee=12", "active=true", "meta={\"v\":1}"})
	require.NoError(t, err)

	assert.Equal(t, "escrow", params["name"])
	assert.Equal(t, float64(12), params["fee"])
	assert.Equal(t, true, params["active"])
	assert.Equal(t, map[string]interface{}{"v": float64(1)}, params["meta"])

	_, err = parseParams([]string{"=x"})
	require.Error(t, err)
	_, err = parseParams([]string{"novalue"})
	require.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, []uint64{1, 2}))
	assert.Equal(t, "[\n  1,\n  2\n]\n", buf.String())
}
