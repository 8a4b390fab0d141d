package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Seeded(t *testing.T) {
	store := NewConfigStore(
		map[string]any{"indexing.batch_size": 20},
		map[string]any{"indexing.batch_size": 50, "embedding.provider": "ollama"},
	)

	assert.Equal(t, 50, store.GetInt("indexing.batch_size"))
	assert.Equal(t, "ollama", store.GetString("embedding.provider"))
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("retrieval.top_k", 20))
	require.NoError(t, store.Set("retrieval.top_k", 30))

	val, ok := store.Get("retrieval.top_k")
	assert.True(t, ok)
	assert.Equal(t, 30, val)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"str":       "value",
		"int":       42,
		"int64":     int64(7),
		"float":     0.35,
		"float_int": 3.0,
		"bool":      true,
		"strings":   []string{"faq", "policy"},
		"anys":      []any{"page", 3, "product"},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("str"), "value"},
		{"string wrong type", store.GetString("int"), ""},
		{"int", store.GetInt("int"), 42},
		{"int from int64", store.GetInt("int64"), 7},
		{"int from float", store.GetInt("float_int"), 3},
		{"int wrong type", store.GetInt("str"), 0},
		{"float", store.GetFloat("float"), 0.35},
		{"float from int", store.GetFloat("int"), 42.0},
		{"float from int64", store.GetFloat("int64"), 7.0},
		{"float missing", store.GetFloat("missing"), 0.0},
		{"float wrong type", store.GetFloat("bool"), 0.0},
		{"bool", store.GetBool("bool"), true},
		{"bool wrong type", store.GetBool("str"), false},
		{"string slice", store.GetStringSlice("strings"), []string{"faq", "policy"}},
		{"any slice keeps strings", store.GetStringSlice("anys"), []string{"page", "product"}},
		{"slice wrong type", store.GetStringSlice("int"), []string(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_SaveLoadNoop(t *testing.T) {
	store := NewConfigStore()
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}

func TestConfigStore_Concurrent(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("indexing.batch_size", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("indexing.batch_size")
		}()
	}
	wg.Wait()

	_, ok := store.Get("indexing.batch_size")
	assert.True(t, ok)
}
