package vaulthttp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestSharedReadIsScopedToGroup(t *testing.T) {
	var first, second singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string, 1)
	go func() {
		v, _ := sharedRead(context.Background(), &first, "vault:status", func(context.Context) (string, error) {
			close(started)
			<-release
			return "first", nil
		})
		done <- v
	}()
	<-started

	got, err := sharedRead(context.Background(), &second, "vault:status", func(context.Context) (string, error) {
		return "second", nil
	})
	require.NoError(t, err)
	require.Equal(t, "second", got)

	close(release)
	require.Equal(t, "first", <-done)
}

func TestSharedReadCallerGivesUp(t *testing.T) {
	var group singleflight.Group
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sharedRead(ctx, &group, "custody:balances", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
