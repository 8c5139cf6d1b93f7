package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	pairs := []any{"container_id", "c-1", "forced", true, "dangling"}
	assert.Equal(t, "c-1", ExtractString(pairs, "container_id"))
	assert.Empty(t, ExtractString(pairs, "forced"), "non-string values are ignored")
	assert.Empty(t, ExtractString(pairs, "dangling"))
}

func TestToMap(t *testing.T) {
	pairs := []any{"container_id", "c-1", "forced", true, "tagged", 2}
	assert.Equal(t, map[string]string{"forced": "true", "tagged": "2"}, ToMap(pairs, "container_id"))
	assert.Nil(t, ToMap([]any{"container_id", "c-1"}, "container_id"))
}
