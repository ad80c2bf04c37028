package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry keeps sessions by id. Entries expire ttl after creation and the
// least recently used one is dropped once size is reached.
type Registry struct {
	core  *Core
	cache *expirable.LRU[string, *Session]
}

func NewRegistry(core *Core, size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = 1024
	}
	l := core.logger
	onEvict := func(id string, _ *Session) {
		l.Debug("session evicted", slog.String("session_id", id))
	}
	return &Registry{core: core, cache: expirable.NewLRU[string, *Session](size, onEvict, ttl)}
}

func (r *Registry) Create() *Session {
	s := r.core.NewSession(uuid.NewString())
	r.cache.Add(s.id, s)
	return s
}

// Get rejects ids that are not UUIDs without touching the cache.
func (r *Registry) Get(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	return r.cache.Get(id)
}

func (r *Registry) Delete(id string) bool { return r.cache.Remove(id) }

func (r *Registry) Len() int { return r.cache.Len() }
