package identifiers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestISBN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		scheme   string
		expected string
		ok       bool
	}{
		{"isbn13 with scheme", "9780316769488", "ISBN", "9780316769488", true},
		{"isbn13 hyphens", "978-0-316-76948-8", "isbn", "9780316769488", true},
		{"isbn10 converted", "0316769487", "ISBN", "9780316769488", true},
		{"isbn10 with X", "080442957X", "", "9780804429573", true},
		{"urn prefix", "urn:isbn:9780316769488", "", "9780316769488", true},
		{"isbn prefix", "ISBN: 978-0-316-76948-8", "", "9780316769488", true},
		{"bad checksum", "9780316769489", "", "", false},
		{"other scheme", "9780316769488", "ASIN", "", false},
		{"uuid", "urn:uuid:a1b2c3d4-e5f6-7890-abcd-ef1234567890", "", "", false},
		{"text", "random text", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ISBN(tt.value, tt.scheme)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateISBN10(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidateISBN10("0316769487"))
	assert.True(t, ValidateISBN10("080442957X"))
	assert.False(t, ValidateISBN10("0316769488"))
	assert.False(t, ValidateISBN10("X316769487"))
	assert.False(t, ValidateISBN10("031676948"))
}

func TestValidateISBN13(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidateISBN13("9780316769488"))
	assert.False(t, ValidateISBN13("9780316769489"))
	assert.False(t, ValidateISBN13("978031676948X"))
}

func TestToISBN13(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "9780316769488", ToISBN13("0316769487"))
	assert.Equal(t, "9780451524935", ToISBN13("0451524934"))
}
