package classifier

import (
	"fmt"
	"sort"
)

// LabelIndex is a bijection between intent labels and class ids. Ids follow
// the lexicographic order of the labels.
type LabelIndex struct {
	labels []string
	ids    map[string]int
}

func NewLabelIndex(labels []string) *LabelIndex {
	seen := make(map[string]struct{}, len(labels))
	uniq := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		uniq = append(uniq, l)
	}
	sort.Strings(uniq)

	ids := make(map[string]int, len(uniq))
	for i, l := range uniq {
		ids[l] = i
	}
	return &LabelIndex{labels: uniq, ids: ids}
}

// labelIndexFromMap rebuilds an index from its persisted label -> id form.
func labelIndexFromMap(m map[string]int) (*LabelIndex, error) {
	labels := make([]string, len(m))
	for l, id := range m {
		if id < 0 || id >= len(labels) || labels[id] != "" {
			return nil, fmt.Errorf("labels: invalid id %d for %q", id, l)
		}
		labels[id] = l
	}
	idx := NewLabelIndex(labels)
	for l, id := range m {
		if idx.ids[l] != id {
			return nil, fmt.Errorf("labels: id %d for %q is not in sorted order", id, l)
		}
	}
	return idx, nil
}

func (li *LabelIndex) Len() int { return len(li.labels) }

func (li *LabelIndex) ID(label string) (int, bool) {
	id, ok := li.ids[label]
	return id, ok
}

func (li *LabelIndex) Label(id int) string {
	return li.labels[id]
}

// Labels returns the labels in id order.
func (li *LabelIndex) Labels() []string {
	out := make([]string, len(li.labels))
	copy(out, li.labels)
	return out
}

func (li *LabelIndex) asMap() map[string]int {
	m := make(map[string]int, len(li.ids))
	for l, id := range li.ids {
		m[l] = id
	}
	return m
}
