package typeid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	id1 := r.Register(SymbolMediaTypeAudio)
	id2 := r.Register(SymbolMediaTypeAudio)
	assert.Equal(t, id1, id2)
	assert.NotZero(t, id1, "0 is reserved for unknown")
}

func TestRegistryDistinctSymbolsGetDistinctIDs(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a := r.Register(SymbolCommandStart)
	b := r.Register(SymbolCommandPause)
	assert.NotEqual(t, a, b)
}

func TestRegistryIDLooksUpWithoutRegistering(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, ok := r.ID(SymbolMetaHeader)
	require.False(t, ok)

	want := r.Register(SymbolMetaHeader)
	got, ok := r.ID(SymbolMetaHeader)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRegistryConcurrentRegister(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var wg sync.WaitGroup
	ids := make([]uint32, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Register(SymbolParamFormat)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
