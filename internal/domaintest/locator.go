package domaintest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// NewLocator returns a unique image url
func NewLocator(t *testing.T) string {
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return fmt.Sprintf("https://images.example.com/products/%s.png", id.String())
}
