package main

import (
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCluster(t *testing.T) {
	var (
		logger      = slog.New(slog.NewTextHandler(io.Discard, nil))
		newCluster3 = func() *cluster {
			return newCluster([]string{"node-1", "node-2", "node-3"}, 8, logger)
		}
	)

	t.Run("should route keys to owner replicas", func(t *testing.T) {
		// Arrange
		var sut = newCluster3()

		// Act
		var id, err = sut.record("tenant-1", 3)

		// Assert
		require.NoError(t, err)
		owner, _ := sut.ring.GetNode("tenant-1")
		assert.Equal(t, owner, id)
		assert.Equal(t, int64(3), sut.byID[id].counter.LocalValue())
		assert.Equal(t, int64(3), sut.expected)
	})

	t.Run("should converge after sync", func(t *testing.T) {
		// Arrange
		var (
			sut = newCluster3()
			rnd = rand.New(rand.NewSource(1))
		)
		for i := 0; i < 1000; i++ {
			var delta = int64(1)
			if i%7 == 0 {
				delta = -2
			}
			_, err := sut.record("tenant-"+strconv.Itoa(i%50), delta)
			require.NoError(t, err)
			if i%100 == 0 {
				require.NoError(t, sut.gossip(rnd))
			}
		}

		// Act
		require.NoError(t, sut.sync())

		// Assert
		assert.True(t, sut.converged(), "values: %v", sut.values())
		for _, v := range sut.values() {
			assert.Equal(t, sut.expected, v)
		}
	})

	t.Run("should keep counts of replica leaving the ring", func(t *testing.T) {
		// Arrange
		var sut = newCluster3()
		for i := 0; i < 100; i++ {
			_, err := sut.record("tenant-"+strconv.Itoa(i), 1)
			require.NoError(t, err)
		}

		// Act
		require.True(t, sut.leave("node-2"))
		for i := 0; i < 100; i++ {
			id, err := sut.record("tenant-"+strconv.Itoa(i), 1)
			require.NoError(t, err)
			assert.NotEqual(t, "node-2", id)
		}
		require.NoError(t, sut.sync())

		// Assert
		assert.False(t, sut.leave("node-2"))
		assert.Equal(t, int64(200), sut.expected)
		assert.True(t, sut.converged(), "values: %v", sut.values())
	})

	t.Run("should fail to route on empty ring", func(t *testing.T) {
		// Arrange
		var sut = newCluster([]string{"node-1"}, 8, logger)
		sut.leave("node-1")

		// Act
		var _, err = sut.record("tenant-1", 1)

		// Assert
		assert.ErrorIs(t, err, errNoOwner)
		assert.NoError(t, sut.gossip(rand.New(rand.NewSource(1))))
	})
}
