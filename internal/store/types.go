package store

import "slices"

// json 字段名与旧版 cve_data.json 保持兼容
type Advisory struct {
	ID               string `json:"errata_id" db:"errata_id"`
	CVEIDs           string `json:"cve_id" db:"cve_ids"`
	Severity         string `json:"severity" db:"severity"`
	IssueDate        string `json:"issue_date" db:"issue_date"`
	OriginalSynopsis string `json:"original_synopsis" db:"original_synopsis"`
	Summary          string `json:"summary" db:"summary"`
	AffectedProducts string `json:"affected_products,omitempty" db:"affected_products"`
}

type Collection map[string]Advisory

func (c Collection) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// issue_date 按字符串倒序，相同时按 id
func (c Collection) Sorted() []Advisory {
	out := make([]Advisory, 0, len(c))
	for _, a := range c {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Advisory) int {
		if a.IssueDate != b.IssueDate {
			if a.IssueDate > b.IssueDate {
				return -1
			}
			return 1
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}
