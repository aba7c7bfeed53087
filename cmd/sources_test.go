package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-validator/internal/catalog"
)

func TestFormatSources(t *testing.T) {
	reg, rules := catalog.Builtin()

	var buf bytes.Buffer
	require.NoError(t, formatSources(&buf, reg, rules))

	out := buf.String()
	for _, src := range reg.Sources() {
		assert.Contains(t, out, string(src.ID))
		assert.Contains(t, out, src.DisplayName)
	}
	assert.Contains(t, out, "price")
	assert.Contains(t, out, "policy:")
	assert.Contains(t, out, "required")
}
