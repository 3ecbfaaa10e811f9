package coordination

import (
	orderedmap "github.com/elliotchance/orderedmap/v2"

	"github.com/nidzo732/fleetwork/pkg/types"
)

// SharedMap is the master-side authority for one shared key/value map
// (spec §4.7.5, the "Manager" primitive). It has no worker-local mirror:
// every operation is a synchronous request/reply, so there is nothing to
// park a task on.
type SharedMap struct {
	id   types.PrimitiveID
	data *orderedmap.OrderedMap[string, any]
}

// NewSharedMap builds an empty shared-map authority.
func NewSharedMap(id types.PrimitiveID) *SharedMap {
	return &SharedMap{id: id, data: orderedmap.NewOrderedMap[string, any]()}
}

// Set stores value under key. No reply value is defined beyond ack (spec
// §4.7.5).
func (m *SharedMap) Set(key string, value any) {
	m.data.Set(key, value)
}

// Get returns the value under key, or !ok if absent — the caller
// translates !ok into the KERR sentinel (spec §6/§7).
func (m *SharedMap) Get(key string) (any, bool) {
	return m.data.Get(key)
}

// Contains reports whether key has been Set.
func (m *SharedMap) Contains(key string) bool {
	_, ok := m.data.Get(key)
	return ok
}

// Length returns the number of keys currently set.
func (m *SharedMap) Length() int {
	return m.data.Len()
}

// Keys returns every key in insertion order.
func (m *SharedMap) Keys() []string {
	return m.data.Keys()
}
