package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferencePrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateTransactionRef(), "UTL"))
	assert.True(t, strings.HasPrefix(GenerateLedgerNo(), "TXN"))
	assert.True(t, strings.HasPrefix(GenerateTopUpNo(), "TPR"))

	// 3 char prefix + 14 char timestamp + 8 digit suffix.
	assert.Len(t, GenerateTransactionRef(), 25)
}

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker, "no duplicate IDs")
}

func TestGenerateTokens(t *testing.T) {
	key := GenerateAPIKey("iu_live_")
	assert.True(t, strings.HasPrefix(key, "iu_live_"))
	assert.Len(t, key, len("iu_live_")+48)

	secret := GenerateSecretKey()
	assert.True(t, strings.HasPrefix(secret, "iu_sec_"))
	assert.NotEqual(t, GenerateSecretKey(), secret)
}
