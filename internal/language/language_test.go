package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAbbreviation(t *testing.T) {
	code, err := FromAbbreviation("en")
	require.NoError(t, err)
	assert.Equal(t, Code("en"), code)
	assert.Equal(t, "English", code.EnglishName())

	code, err = FromAbbreviation(" DE ")
	require.NoError(t, err)
	assert.Equal(t, Code("de"), code)

	_, err = FromAbbreviation("tlh")
	assert.Error(t, err)
}

func TestFromEnglishName(t *testing.T) {
	code, err := FromEnglishName("finnish")
	require.NoError(t, err)
	assert.Equal(t, Code("fi"), code)

	_, err = FromEnglishName("Klingon")
	assert.Error(t, err)
}

func TestKnownIsSorted(t *testing.T) {
	codes := Known()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
	assert.Contains(t, codes, Code("en"))
}
