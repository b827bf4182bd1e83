package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallbackCaptureSink_ForwardsBlocks(t *testing.T) {
	var got [][]int16
	sink := NewCallbackCaptureSink(func(samples []int16) {
		cp := make([]int16, len(samples))
		copy(cp, samples)
		got = append(got, cp)
	})

	require.NoError(t, sink.Write([]int16{1, 2, 3, 4}))
	require.NoError(t, sink.Write([]int16{-1, -2}))
	require.NoError(t, sink.Close())

	require.Len(t, got, 2)
	require.Equal(t, []int16{1, 2, 3, 4}, got[0])
	require.Equal(t, []int16{-1, -2}, got[1])
}

func TestCallbackCaptureSink_NilFuncIsSafe(t *testing.T) {
	sink := &CallbackCaptureSink{}
	require.NoError(t, sink.Write([]int16{1, 2}))
	require.NoError(t, sink.Close())
}
