package session

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Loader loads transcripts through a bounded LRU cache. Cached values are
// immutable once parsed; the cache key includes the file modification time,
// so a session that grows while under review is re-read rather than served
// stale.
type Loader struct {
	cache *lru.Cache[string, *Transcript]
}

// NewLoader returns a Loader caching up to size parsed transcripts.
func NewLoader(size int) (*Loader, error) {
	if size <= 0 {
		size = 16
	}
	c, err := lru.New[string, *Transcript](size)
	if err != nil {
		return nil, fmt.Errorf("create transcript cache: %w", err)
	}
	return &Loader{cache: c}, nil
}

// Load returns the parsed transcript for s, from cache when the file has not
// changed since it was parsed.
func (l *Loader) Load(s Session) (*Transcript, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("stat transcript %s: %w", s.Path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", s.Path, info.ModTime().UnixNano(), info.Size())
	if t, ok := l.cache.Get(key); ok {
		return t, nil
	}
	t, err := LoadTranscript(s)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, t)
	return t, nil
}
