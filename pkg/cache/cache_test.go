package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClientIsNoop(t *testing.T) {
	c := NewService(nil)
	ctx := context.Background()

	assert.False(t, c.IsAvailable())
	assert.Error(t, c.Ping(ctx))
	assert.NoError(t, c.SetVersion(ctx, 7, map[string]string{"title": "x"}))

	var dest map[string]string
	assert.ErrorIs(t, c.GetVersion(ctx, 7, &dest), ErrMiss)
	assert.Nil(t, dest)
}

func TestVersionKey(t *testing.T) {
	assert.Equal(t, "kb:version:42", versionKey(42))
}
