package errcodes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"not found", NotFound("Book"), CodeNotFound},
		{"wrapped duplicate", errors.Wrap(Duplicate("Foo", "Bar"), "import"), CodeDuplicate},
		{"invalid archive", errors.WithStack(InvalidArchive("zip: not a valid zip file")), CodeInvalidArchive},
		{"cancelled", Cancelled(), CodeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Code(tt.err))
		})
	}
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(NotFound("Book"), "retrieve")
	assert.True(t, errors.Is(err, NotFound("Book")))
	assert.False(t, errors.Is(err, NotFound("File")))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsDuplicate(err))
}

func TestDuplicate_NamesExistingBook(t *testing.T) {
	t.Parallel()

	err := Duplicate("Foo", "Bar")
	assert.Contains(t, err.Error(), `"Foo"`)
	assert.Contains(t, err.Error(), `"Bar"`)
}
