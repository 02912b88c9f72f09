package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	A uint64
	B string
}

func TestOfIsDeterministic(t *testing.T) {
	v := sample{A: 7, B: "subject"}
	id1, err := Of(v)
	require.NoError(t, err)
	id2, err := Of(v)
	require.NoError(t, err)
	require.True(t, id1.Equal(id2))
}

func TestOfDistinguishesContent(t *testing.T) {
	id1, err := Of(sample{A: 1, B: "x"})
	require.NoError(t, err)
	id2, err := Of(sample{A: 2, B: "x"})
	require.NoError(t, err)
	require.False(t, id1.Equal(id2))
}
