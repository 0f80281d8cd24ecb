package analyzer

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bmcp/codegraph/internal/identity"
)

// identityPair is a cached (canonical_id, gid) result.
type identityPair struct {
	canonical string
	gid       string
}

// IdentityCache memoizes identity generation. A single file mentions the
// same entities many times (every call site, every reference), so the hit
// rate within one analysis run is high.
type IdentityCache struct {
	cache *lru.Cache[string, identityPair]
}

// NewIdentityCache creates a cache holding up to size entries.
func NewIdentityCache(size int) (*IdentityCache, error) {
	cache, err := lru.New[string, identityPair](size)
	if err != nil {
		return nil, err
	}
	return &IdentityCache{cache: cache}, nil
}

// Generate returns the (canonical_id, gid) pair for req, consulting the
// cache first.
func (c *IdentityCache) Generate(req identity.Request) (string, string, error) {
	key := cacheKey(req)
	if pair, ok := c.cache.Get(key); ok {
		return pair.canonical, pair.gid, nil
	}

	canonical, gid, err := identity.Generate(req)
	if err != nil {
		return "", "", err
	}
	c.cache.Add(key, identityPair{canonical: canonical, gid: gid})
	return canonical, gid, nil
}

func cacheKey(req identity.Request) string {
	var b strings.Builder
	b.WriteString(req.FilePath)
	b.WriteByte('\x00')
	b.WriteString(string(req.EntityType))
	b.WriteByte('\x00')
	b.WriteString(req.Name)
	b.WriteByte('\x00')
	b.WriteString(req.ParentCanonicalID)
	b.WriteByte('\x00')
	b.WriteString(strings.Join(req.ParamTypes, ","))
	b.WriteByte('\x00')
	b.WriteString(req.LanguageHint)
	return b.String()
}
