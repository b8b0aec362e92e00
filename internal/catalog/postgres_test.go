package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalDecimal(t *testing.T) {
	got, err := optionalDecimal(nil)
	require.NoError(t, err)
	assert.Nil(t, got, "open-ended bracket")

	upper := "120000.00"
	got, err = optionalDecimal(&upper)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "120000", got.String())

	bad := "unbounded"
	_, err = optionalDecimal(&bad)
	assert.Error(t, err)
}

func TestPostgresSourceRequiresPool(t *testing.T) {
	_, err := NewPostgresSource(nil).Load(context.Background())
	assert.ErrorContains(t, err, "not initialised")
}
