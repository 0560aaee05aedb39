package privilege

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_ReleaseOnce(t *testing.T) {
	calls := 0
	g := &Guard{name: Debug, release: func() error {
		calls++
		return errors.New("already dropped")
	}}

	assert.Error(t, g.Release())
	assert.Error(t, g.Release())
	assert.Equal(t, 1, calls)
	assert.Equal(t, Debug, g.Name())
}

func TestGuard_NilSafe(t *testing.T) {
	var g *Guard
	assert.NoError(t, g.Release())
}
