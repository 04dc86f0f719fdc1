package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockMap_SecondAcquireDeniedWhileHeld(t *testing.T) {
	l := NewLockMap()
	assert.True(t, l.Acquire("room:1", time.Minute))
	assert.False(t, l.Acquire("room:1", time.Minute))
	assert.True(t, l.Acquire("room:2", time.Minute), "other names stay free")
}

func TestLockMap_ReleaseFreesLock(t *testing.T) {
	l := NewLockMap()
	assert.True(t, l.Acquire("room:1", time.Minute))
	l.Release("room:1")
	assert.True(t, l.Acquire("room:1", time.Minute))
}

func TestLockMap_ExpiredLockIsTakenOver(t *testing.T) {
	now := time.Now()
	l := NewLockMap().WithClock(func() time.Time { return now })

	assert.True(t, l.Acquire("room:1", 30*time.Second))
	now = now.Add(29 * time.Second)
	assert.False(t, l.Acquire("room:1", 30*time.Second))
	now = now.Add(2 * time.Second)
	assert.True(t, l.Acquire("room:1", 30*time.Second), "a crashed holder must not wedge the room")
}
