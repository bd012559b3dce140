package imago

// Cache provides a cache for forwarded artifacts. It matches httpcache.Cache,
// so any of its backends can be used.
type Cache interface {
	// Get returns the response stored under key, if any.
	Get(key string) (data []byte, ok bool)
	Set(key string, data []byte)
	Delete(key string)
}

// NopCache is a Cache that stores nothing.
var NopCache = new(nopCache)

type nopCache struct{}

func (c nopCache) Get(string) ([]byte, bool) { return nil, false }
func (c nopCache) Set(string, []byte)        {}
func (c nopCache) Delete(string)             {}
