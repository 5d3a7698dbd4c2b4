package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable_Ordered(t *testing.T) {
	all, err := Available()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "0001_users", all[0].Version)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
}
