package azbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable(t *testing.T) {
	table := newLockTable()
	m1 := &ReceivedMessage{MessageID: "m1"}
	m2 := &ReceivedMessage{MessageID: "m2"}

	table.add("t1", m1)
	table.add("t2", m2)
	assert.Equal(t, 2, table.size())

	got, ok := table.get("t1")
	require.True(t, ok)
	assert.Same(t, m1, got)

	_, ok = table.get("unknown")
	assert.False(t, ok)

	table.remove("t1")
	_, ok = table.get("t1")
	assert.False(t, ok)
	assert.Equal(t, 1, table.size())

	// removing an absent token is a no-op
	table.remove("t1")

	table.clear()
	assert.Equal(t, 0, table.size())
}

func TestLockTableIgnoresEmptyToken(t *testing.T) {
	table := newLockTable()
	table.add("", &ReceivedMessage{MessageID: "m1"})
	assert.Equal(t, 0, table.size())
}

func TestLockTableConcurrent(t *testing.T) {
	table := newLockTable()
	var wg sync.WaitGroup
	for _, token := range []string{"a", "b", "c", "d"} {
		token := token
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.add(token, &ReceivedMessage{MessageID: token})
			_, _ = table.get(token)
			table.remove(token)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, table.size())
}
