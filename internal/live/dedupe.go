package live

import lru "github.com/hashicorp/golang-lru/v2"

// Dedupe remembers recently seen event IDs.
type Dedupe struct {
	ids *lru.Cache[int64, struct{}]
}

// NewDedupe returns a Dedupe holding up to size IDs.
func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = 1024
	}
	ids, _ := lru.New[int64, struct{}](size)
	return &Dedupe{ids: ids}
}

// Add records id and reports whether it was new.
func (d *Dedupe) Add(id int64) bool {
	ok, _ := d.ids.ContainsOrAdd(id, struct{}{})
	return !ok
}

// Len returns the number of remembered IDs.
func (d *Dedupe) Len() int {
	return d.ids.Len()
}
