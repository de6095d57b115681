package engine

import "sort"

// Projection is an immutable subgraph snapshot used by the graph algorithms.
// Node identities are "Label:ID" strings; adjacency is index-based.
type Projection struct {
	Name  string
	Keys  []string
	index map[string]int
	// Out holds directed adjacency; Undirected additionally includes the
	// reverse direction of every edge, deduplicated.
	Out        [][]int
	In         [][]int
	Undirected [][]int
}

// Project builds a snapshot restricted to the given node labels and
// relationship types. Empty filters mean no restriction.
func (db *Database) Project(name string, nodeLabels, relTypes []string) *Projection {
	db.mu.RLock()
	defer db.mu.RUnlock()

	wantLabel := map[string]bool{}
	for _, l := range nodeLabels {
		wantLabel[l] = true
	}
	wantType := map[string]bool{}
	for _, t := range relTypes {
		wantType[t] = true
	}

	p := &Projection{Name: name, index: make(map[string]int)}
	for key := range db.nodes {
		if len(wantLabel) > 0 && !wantLabel[key.Label] {
			continue
		}
		p.Keys = append(p.Keys, key.String())
	}
	sort.Strings(p.Keys)
	for i, k := range p.Keys {
		p.index[k] = i
	}

	n := len(p.Keys)
	p.Out = make([][]int, n)
	p.In = make([][]int, n)
	p.Undirected = make([][]int, n)
	seen := map[[2]int]bool{}

	for _, r := range db.rels {
		if len(wantType) > 0 && !wantType[r.Type] {
			continue
		}
		from, ok := p.index[nodeKey{r.FromLabel, r.FromID}.String()]
		if !ok {
			continue
		}
		to, ok := p.index[nodeKey{r.ToLabel, r.ToID}.String()]
		if !ok {
			continue
		}
		p.Out[from] = append(p.Out[from], to)
		p.In[to] = append(p.In[to], from)
		if !seen[[2]int{from, to}] {
			seen[[2]int{from, to}] = true
			p.Undirected[from] = append(p.Undirected[from], to)
		}
		if from != to && !seen[[2]int{to, from}] {
			seen[[2]int{to, from}] = true
			p.Undirected[to] = append(p.Undirected[to], from)
		}
	}
	return p
}

// Size returns the node count of the projection.
func (p *Projection) Size() int { return len(p.Keys) }

// IndexOf returns the index of a "Label:ID" key, or -1.
func (p *Projection) IndexOf(key string) int {
	if i, ok := p.index[key]; ok {
		return i
	}
	return -1
}
