package tracker

import "sync"

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocker serializes work per key, unused locks are dropped
type keyLocker struct {
	lock  sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: map[string]*keyLock{}}
}

func (kl *keyLocker) acquire(key string) func() {
	kl.lock.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = &keyLock{}
		kl.locks[key] = l
	}
	l.refs++
	kl.lock.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		kl.lock.Lock()
		defer kl.lock.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(kl.locks, key)
		}
	}
}
