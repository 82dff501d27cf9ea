package cache

import (
	"time"

	"github.com/chorusflow/chorus/model"
	c "github.com/patrickmn/go-cache"
)

// DefinitionCache sits in front of workflow storage reads. Entries expire on
// TTL and are invalidated explicitly on every definition write.
type DefinitionCache struct {
	cache *c.Cache
	ttl   time.Duration
}

func NewDefinitionCache(ttl time.Duration) *DefinitionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DefinitionCache{
		cache: c.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

func (ch *DefinitionCache) Set(wf *model.WorkflowDefinition) {
	ch.cache.Set(wf.Id, wf, ch.ttl)
}

func (ch *DefinitionCache) Get(id string) (*model.WorkflowDefinition, bool) {
	val, found := ch.cache.Get(id)
	if !found {
		return nil, false
	}
	wf, ok := val.(*model.WorkflowDefinition)
	return wf, ok
}

func (ch *DefinitionCache) Invalidate(id string) {
	ch.cache.Delete(id)
}
