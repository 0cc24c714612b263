package payment

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReference_Format(t *testing.T) {
	reference := NewReference()
	assert.Regexp(t, regexp.MustCompile(`^MIPROJET-\d{10,}-[A-Z0-9]{5}$`), reference)
}

func TestNewReference_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		reference := NewReference()
		assert.False(t, seen[reference], "duplicate reference %s", reference)
		seen[reference] = true
	}
}
