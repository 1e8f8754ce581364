package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sathi/internal/utils"
)

func TestIsValidForceID(t *testing.T) {
	assert.True(t, utils.IsValidForceID("123456789"))
	assert.False(t, utils.IsValidForceID("12345678"), "too short")
	assert.False(t, utils.IsValidForceID("1234567890"), "too long")
	assert.False(t, utils.IsValidForceID("12345678a"), "letters rejected")
	assert.False(t, utils.IsValidForceID("12345 789"), "spaces rejected")
	assert.False(t, utils.IsValidForceID(""))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, utils.CountWords(""))
	assert.Equal(t, 0, utils.CountWords("   \t\n  "))
	assert.Equal(t, 1, utils.CountWords("hello"))
	assert.Equal(t, 2, utils.CountWords("  hello   world  "))
	assert.Equal(t, 5, utils.CountWords("one two three four five"))
	assert.Equal(t, 3, utils.CountWords("मुझे नींद आती"), "non-Latin words count")
}
