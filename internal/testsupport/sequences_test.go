package testsupport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSequence_Increments(t *testing.T) {
	seq1 := NextSequence()
	seq2 := NextSequence()

	assert.Equal(t, seq1+1, seq2, "Should increment by 1")
}

func TestUniqueName_ConcurrentCallsAreUnique(t *testing.T) {
	const n = 50
	names := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i] = UniqueName("product")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		assert.Contains(t, name, "product_")
		seen[name] = true
	}
}
