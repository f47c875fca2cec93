package azbus

import (
	"sync"
)

// lockTable maps the lock token issued with each received message back to the
// underlying vendor message object. Settlement operations are addressed by
// lock token, and the azservicebus receiver settles by message, so every token
// handed to a caller must remain resolvable until its message is settled or
// the receiver is closed. Entries have no expiry; resolving a token whose
// server-side lock has lapsed simply surfaces the vendor failure on the
// settle call.
type lockTable struct {
	mtx     sync.Mutex
	entries map[string]*ReceivedMessage
}

func newLockTable() *lockTable {
	return &lockTable{
		entries: map[string]*ReceivedMessage{},
	}
}

func (t *lockTable) add(token string, msg *ReceivedMessage) {
	if token == "" {
		return
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.entries[token] = msg
}

func (t *lockTable) get(token string) (*ReceivedMessage, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	msg, ok := t.entries[token]
	return msg, ok
}

func (t *lockTable) remove(token string) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delete(t.entries, token)
}

func (t *lockTable) clear() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.entries = map[string]*ReceivedMessage{}
}

func (t *lockTable) size() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.entries)
}
