package h1

import (
	"bufio"
	"strings"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

// caseEntry is one node of the header-case adjustment map of spec.md
// §3/§4.6.5: keyed by the case-insensitive header name, holding the
// canonical outgoing spelling.
type caseEntry struct {
	lower     string
	canonical string
}

func (e caseEntry) Less(other btree.Item) bool {
	return e.lower < other.(caseEntry).lower
}

// CaseMap is the ordered binary tree of spec.md §4.6.5, read-mostly and
// built at startup from directives or a bulk file.
type CaseMap struct {
	tree *btree.BTree
}

// NewCaseMap returns an empty case-adjustment map.
func NewCaseMap() *CaseMap {
	return &CaseMap{tree: btree.New(8)}
}

// Add records a single from/to mapping (the `h1-case-adjust` directive).
func (c *CaseMap) Add(from, to string) {
	c.tree.ReplaceOrInsert(caseEntry{lower: strings.ToLower(from), canonical: to})
}

// LoadFile bulk-loads space-separated "from to" pairs, one per line,
// with '#' comments and blank lines ignored — the `h1-case-adjust-file`
// directive of spec.md §6.
func (c *CaseMap) LoadFile(r *bufio.Scanner) error {
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return errors.Errorf("h1-case-adjust-file: malformed line %q", line)
		}
		c.Add(fields[0], fields[1])
	}
	return r.Err()
}

// Lookup returns the canonical spelling for name, or name unchanged if
// no entry exists, per spec.md §4.6.5.
func (c *CaseMap) Lookup(name string) string {
	item := c.tree.Get(caseEntry{lower: strings.ToLower(name)})
	if item == nil {
		return name
	}
	return item.(caseEntry).canonical
}

// Len reports the number of entries in the map.
func (c *CaseMap) Len() int { return c.tree.Len() }
