package facts

import (
	"fmt"
	"sync"
	"time"
)

// firedInfo captures what the engine last said and why, for /explain.
type firedInfo struct {
	factoidText string
	author      string
	pattern     string
	matched     string
}

// sessionTracker remembers the last fired factoid per room and per user.
type sessionTracker struct {
	mu   sync.Mutex
	last map[string]firedInfo
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{
		last: make(map[string]firedInfo),
	}
}

// record overwrites the last-fired info for one session key.
func (t *sessionTracker) record(key string, info firedInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = info
}

// explain renders the last-fired explanation, preferring the primary key.
//
// Room messages look up the room session first and fall back to the asking
// user's private session, matching how firings are recorded.
func (t *sessionTracker) explain(primaryKey, fallbackKey string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.last[primaryKey]
	if !ok {
		info, ok = t.last[fallbackKey]
	}
	if !ok {
		return "I didn't do anything..."
	}

	// Raw text between plain quotes: the stored factoid and pattern must show
	// exactly as written, without Go escaping of quotes or backslashes.
	out := fmt.Sprintf("That was \"%s\", triggered by \"%s\"", info.factoidText, info.matched)
	if info.pattern != `\b`+info.matched+`\b` {
		out += fmt.Sprintf(" matching \"%s\"", info.pattern)
	}
	if info.author != "" {
		out += ", authored by " + info.author
	}

	return out
}

// rateLimiter suppresses room triggering for a short window after each fire.
//
// The window keeps two bots from triggering off each other indefinitely and
// keeps a burst of backlogged messages from firing several factoids at once.
type rateLimiter struct {
	mu            sync.Mutex
	suppressUntil map[string]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		suppressUntil: make(map[string]time.Time),
	}
}

// suppressed reports whether the room is inside its suppression window.
func (l *rateLimiter) suppressed(roomID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.suppressUntil[roomID]

	return ok && now.Before(until)
}

// suppress opens a suppression window for the room.
func (l *rateLimiter) suppress(roomID string, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suppressUntil[roomID] = until
}

// keyedMutex serializes work per string key while keeping keys independent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()

	return lock.Unlock
}
