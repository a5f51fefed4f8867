package matcher

import "strings"

// 只按 errata id 命中，上游内容变更不会触发重新采集
type Index struct {
	ids map[string]struct{}
}

func NewIndex(ids []string) *Index {
	idx := &Index{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		idx.Mark(id)
	}
	return idx
}

func normalize(id string) string { return strings.TrimSpace(id) }

func (i *Index) Known(id string) bool {
	_, ok := i.ids[normalize(id)]
	return ok
}

func (i *Index) Mark(id string) {
	if id = normalize(id); id != "" {
		i.ids[id] = struct{}{}
	}
}

func (i *Index) Len() int { return len(i.ids) }
