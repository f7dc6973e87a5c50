package collection

import (
	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
)

// Comparator defines the order of a collection. The zero value keeps
// insertion order. Ties always fall back to insertion order.
type Comparator struct {
	Attribute string
	Func      func(a, b *model.Model) int
}

func ByAttribute(name string) Comparator {
	return Comparator{Attribute: name}
}

func ByFunc(f func(a, b *model.Model) int) Comparator {
	return Comparator{Func: f}
}

func (c Comparator) less(a, b *entry) bool {
	result := 0
	switch {
	case c.Func != nil:
		result = c.Func(a.model, b.model)
	case c.Attribute != "":
		result = record.Compare(a.key, b.key)
	}
	if result != 0 {
		return result < 0
	}
	return a.seq < b.seq
}

// key is what gets snapshotted into the entry so the tree can find it again
// after the model changes.
func (c Comparator) key(m *model.Model) any {
	if c.Attribute == "" {
		return nil
	}
	return m.Get(c.Attribute)
}
