package core

import "sync"

// walletLocks serializes mutations per address. Entries are reference counted
// and dropped once no caller holds or waits on them.
type walletLocks struct {
	mu    sync.Mutex
	locks map[string]*walletLock
}

type walletLock struct {
	mu   sync.Mutex
	refs int
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[string]*walletLock)}
}

// lock blocks until address is free and returns its unlock function.
func (w *walletLocks) lock(address string) func() {
	w.mu.Lock()
	l, ok := w.locks[address]
	if !ok {
		l = &walletLock{}
		w.locks[address] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, address)
		}
		w.mu.Unlock()
	}
}

func (w *walletLocks) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locks)
}
