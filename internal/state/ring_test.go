package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5}, r.Last(10))
}

func TestRing_Unbounded(t *testing.T) {
	r := NewRing[string](0)
	for i := 0; i < 1000; i++ {
		r.Push("x")
	}
	assert.Equal(t, 1000, r.Len())
}

func TestRing_SetLimitKeepsNewest(t *testing.T) {
	r := NewRing[int](0)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	r.SetLimit(4)
	assert.Equal(t, []int{3, 4, 5, 6}, r.Items())
	r.Push(7)
	assert.Equal(t, []int{4, 5, 6, 7}, r.Items())
	assert.Equal(t, 4, r.Limit())
}

func TestRing_JSON(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `[2,3,4]`, string(data))

	restored := NewRing[int](2)
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, []int{3, 4}, restored.Items())
}

func TestRing_Clear(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Clear()
	assert.Empty(t, r.Items())
	r.Push(9)
	assert.Equal(t, []int{9}, r.Items())
}
