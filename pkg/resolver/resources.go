package resolver

import "github.com/Mindburn-Labs/homestar/pkg/workflow"

// ResourceTable is the immutable table of externally-fetched resource
// bytes a worker populates before running any batch. Resolution treats
// a hit here as an opaque bytes value, regardless of what the fetched
// content actually represents.
type ResourceTable struct {
	bytes map[string][]byte
}

// NewResourceTable wraps a fully-populated resource map. The table is
// read-only from this point on: all fetching happens before a
// ResourceTable is constructed.
func NewResourceTable(fetched map[string][]byte) *ResourceTable {
	if fetched == nil {
		fetched = map[string][]byte{}
	}
	return &ResourceTable{bytes: fetched}
}

// Get looks up the fetched bytes for resource r.
func (t *ResourceTable) Get(r workflow.Resource) ([]byte, bool) {
	b, ok := t.bytes[r.String()]
	return b, ok
}
