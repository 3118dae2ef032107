package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
}

func TestShort(t *testing.T) {
	// Just verify it returns the version string
	result := Short()
	assert.Equal(t, Version, result)
}

func TestFull(t *testing.T) {
	// Verify it returns formatted string with all fields
	result := Full()
	assert.Contains(t, result, Version)
	assert.Contains(t, result, GitCommit)
	assert.Contains(t, result, BuildDate)
	assert.Contains(t, result, "commit:")
	assert.Contains(t, result, "built:")
}
