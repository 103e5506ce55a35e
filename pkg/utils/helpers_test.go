package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMD5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", CalculateMD5(nil))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", CalculateMD5([]byte("hello")))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "简历", TruncateRunes("简历", 2, "..."))
	assert.Equal(t, "简...", TruncateRunes("简历", 1, "..."))
	assert.Equal(t, "abc", TruncateRunes("abc", -1, "..."))
}
