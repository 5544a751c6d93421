package recalc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationSingleInFlight(t *testing.T) {
	var g Generation

	tok, issue := g.Acquire()
	require.True(t, issue)
	require.True(t, g.Pending())

	// any number of supersessions while pending
	for i := 0; i < 3; i++ {
		_, again := g.Acquire()
		require.False(t, again)
	}

	require.False(t, g.Release(tok))
	require.False(t, g.Pending())

	tok, issue = g.Acquire()
	require.True(t, issue)
	require.True(t, g.Release(tok))
}

func TestGenerationLatestWins(t *testing.T) {
	var g Generation
	first := g.Next()
	second := g.Next()
	require.False(t, g.Current(first))
	require.True(t, g.Current(second))
}

func TestFlagsSetAndList(t *testing.T) {
	f := Flags{}
	f.Set(true, attrC, attrA)
	require.True(t, f.Is(attrA))
	require.Equal(t, []Attr{attrA, attrC}, f.List())
	f.Set(false, attrA)
	require.False(t, f.Is(attrA))
}

func TestFoldOrderedIgnoresCompletionOrder(t *testing.T) {
	gates := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}
	done := make(chan string, 1)
	go func() {
		acc, err := FoldOrdered(context.Background(), []int{0, 1, 2},
			func(ctx context.Context, i int) (string, error) {
				<-gates[i]
				return string(rune('a' + i)), nil
			}, "", func(acc string, r string) string { return acc + r })
		assert.NoError(t, err)
		done <- acc
	}()
	// release in reverse order
	close(gates[2])
	close(gates[1])
	close(gates[0])
	require.Equal(t, "abc", <-done)
}

func TestFoldOrderedReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	acc, err := FoldOrdered(context.Background(), []int{1, 2},
		func(ctx context.Context, i int) (int, error) {
			if i == 2 {
				return 0, boom
			}
			return i, nil
		}, 100, func(acc, r int) int { return acc + r })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 100, acc)
}
