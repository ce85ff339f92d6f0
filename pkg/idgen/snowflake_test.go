package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice(t *testing.T) {
	tests := []struct {
		slug   string
		prefix string
	}{
		{slug: "banjir-demak", prefix: "DON_BAN"},
		{slug: "ab", prefix: "DON_AB"},
		{slug: "--x-y-z", prefix: "DON_XYZ"},
		{slug: "", prefix: "DON_GEN"},
		{slug: "3d-printer", prefix: "DON_3DP"},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			inv := GenerateInvoice(tt.slug)
			assert.True(t, strings.HasPrefix(inv, tt.prefix), inv)
			assert.Greater(t, len(inv), len(tt.prefix))
			assert.Equal(t, strings.ToUpper(inv), inv)
		})
	}
}

func TestGenerateOrderIDUnique(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := GenerateOrderID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "TRX"))
		break
	}
}
