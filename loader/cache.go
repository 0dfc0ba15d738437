package loader

import (
	"encoding/base64"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"

	"github.com/sugiura-hiromiti/osoboot/elf"
)

// ImageCache memoizes parsed kernel images by content hash. Reloading the
// same kernel after a failed boot attempt skips the parse entirely.
type ImageCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewImageCache() *ImageCache {
	cache, err := lru.NewARC(16)
	if err != nil {
		panic(err)
	}

	return &ImageCache{cache: cache}
}

// CacheKey derives the content key for a raw image.
func CacheKey(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return base64.URLEncoding.EncodeToString(sum[:])
}

func (c *ImageCache) Lookup(key string) (*elf.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*elf.Image), true
}

func (c *ImageCache) Set(key string, img *elf.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, img)
}
