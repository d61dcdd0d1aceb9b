package contentid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerRoundTrips(t *testing.T) {
	id := Of([]byte("int add(int a, int b) { return a + b; }"))
	src := Marker(id) + "int add(int a, int b) { return a + b; }\n"

	got, ok := Find([]byte(src))
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestFindReportsAbsence(t *testing.T) {
	_, ok := Find([]byte("int add(int a, int b) { return a + b; }"))
	assert.False(t, ok)
}

func TestOfIsDeterministic(t *testing.T) {
	a := Of([]byte("same input"))
	b := Of([]byte("same input"))
	assert.Equal(t, a, b)

	c := Of([]byte("different input"))
	assert.NotEqual(t, a, c)
}
