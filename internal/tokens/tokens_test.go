package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	n, err := Estimate("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Estimate("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Greater(t, EstimateSimple(`{"final_answer": "a longer piece of streamed text"}`), 5)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "≈812 tokens", Format(812))
	assert.Equal(t, "≈12.4k tokens", Format(12400))
}
