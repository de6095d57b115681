package engine

import (
	"context"
	"fmt"
)

// PageRankOptions tunes the power iteration.
type PageRankOptions struct {
	Damping       float64 // default 0.85
	MaxIterations int     // default 20
	Tolerance     float64 // default 1e-6, stop early when total delta drops below
	// OnIteration, when set, is invoked after every completed iteration.
	OnIteration func(iteration int, delta float64)
}

// PageRank runs the classic power iteration over the projection's directed
// edges. Dangling mass is redistributed uniformly.
func PageRank(ctx context.Context, p *Projection, opts PageRankOptions) (map[string]float64, error) {
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}

	n := p.Size()
	if n == 0 {
		return map[string]float64{}, nil
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base := (1 - opts.Damping) / float64(n)
		dangling := 0.0
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if len(p.Out[i]) == 0 {
				dangling += rank[i]
				continue
			}
			share := opts.Damping * rank[i] / float64(len(p.Out[i]))
			for _, j := range p.Out[i] {
				next[j] += share
			}
		}
		if dangling > 0 {
			spread := opts.Damping * dangling / float64(n)
			for i := range next {
				next[i] += spread
			}
		}

		delta := 0.0
		for i := range rank {
			d := next[i] - rank[i]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		rank, next = next, rank
		if opts.OnIteration != nil {
			opts.OnIteration(iter, delta)
		}
		if delta < opts.Tolerance {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, k := range p.Keys {
		out[k] = rank[i]
	}
	return out, nil
}

// KCoreDecomposition returns the core number of every node, computed by
// iterative peeling over the undirected projection.
func KCoreDecomposition(ctx context.Context, p *Projection) (map[string]int, error) {
	n := p.Size()
	degree := make([]int, n)
	for i := range p.Undirected {
		degree[i] = len(p.Undirected[i])
	}
	core := make([]int, n)
	removed := make([]bool, n)

	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := true
		for changed {
			changed = false
			for i := 0; i < n; i++ {
				if removed[i] || degree[i] > k {
					continue
				}
				removed[i] = true
				core[i] = k
				changed = true
				for _, j := range p.Undirected[i] {
					if !removed[j] {
						degree[j]--
					}
				}
			}
		}
		done := true
		for i := 0; i < n; i++ {
			if !removed[i] {
				done = false
				break
			}
		}
		if done {
			break
		}
	}

	out := make(map[string]int, n)
	for i, key := range p.Keys {
		out[key] = core[i]
	}
	return out, nil
}

// LouvainCommunities runs a single-level greedy modularity pass over the
// undirected projection and returns a community id per node.
func LouvainCommunities(ctx context.Context, p *Projection) (map[string]int, error) {
	n := p.Size()
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}
	totalEdges := 0
	for i := range p.Undirected {
		totalEdges += len(p.Undirected[i])
	}
	m := float64(totalEdges) / 2
	if m == 0 {
		out := make(map[string]int, n)
		for i, key := range p.Keys {
			out[key] = i
		}
		return out, nil
	}

	degree := make([]float64, n)
	for i := range p.Undirected {
		degree[i] = float64(len(p.Undirected[i]))
	}
	communityDegree := make([]float64, n)
	copy(communityDegree, degree)

	improved := true
	for pass := 0; improved && pass < 10; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		improved = false
		for i := 0; i < n; i++ {
			current := community[i]
			// links from i into each neighboring community
			links := map[int]float64{}
			for _, j := range p.Undirected[i] {
				links[community[j]]++
			}

			communityDegree[current] -= degree[i]
			bestCommunity := current
			bestGain := 0.0
			for c, l := range links {
				gain := l/m - communityDegree[c]*degree[i]/(2*m*m)
				if gain > bestGain {
					bestGain = gain
					bestCommunity = c
				}
			}
			community[i] = bestCommunity
			communityDegree[bestCommunity] += degree[i]
			if bestCommunity != current {
				improved = true
			}
		}
	}

	out := make(map[string]int, n)
	seen := map[int]int{}
	for i, key := range p.Keys {
		c := community[i]
		if _, ok := seen[c]; !ok {
			seen[c] = len(seen)
		}
		out[key] = seen[c]
	}
	return out, nil
}

// StronglyConnectedComponents runs Tarjan's algorithm (iterative, so deep
// graphs cannot blow the goroutine stack) and returns a component id per node.
func StronglyConnectedComponents(ctx context.Context, p *Projection) (map[string]int, error) {
	n := p.Size()
	const unvisited = -1
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	comp := make([]int, n)
	for i := range index {
		index[i] = unvisited
		comp[i] = unvisited
	}
	var stack []int
	counter := 0
	components := 0

	type frame struct {
		v, childIdx int
	}

	for start := 0; start < n; start++ {
		if index[start] != unvisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		callStack := []frame{{v: start}}
		for len(callStack) > 0 {
			f := &callStack[len(callStack)-1]
			v := f.v
			if f.childIdx == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++
				stack = append(stack, v)
				onStack[v] = true
			}
			advanced := false
			for f.childIdx < len(p.Out[v]) {
				w := p.Out[v][f.childIdx]
				f.childIdx++
				if index[w] == unvisited {
					callStack = append(callStack, frame{v: w})
					advanced = true
					break
				} else if onStack[w] {
					if index[w] < lowlink[v] {
						lowlink[v] = index[w]
					}
				}
			}
			if advanced {
				continue
			}
			// v is finished
			if lowlink[v] == index[v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = components
					if w == v {
						break
					}
				}
				components++
			}
			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := callStack[len(callStack)-1].v
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}

	out := make(map[string]int, n)
	for i, key := range p.Keys {
		out[key] = comp[i]
	}
	return out, nil
}

// WeaklyConnectedComponents unions nodes over undirected reachability and
// returns a component id per node.
func WeaklyConnectedComponents(ctx context.Context, p *Projection) (map[string]int, error) {
	n := p.Size()
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, j := range p.Undirected[i] {
			ri, rj := find(i), find(j)
			if ri != rj {
				parent[ri] = rj
			}
		}
	}

	out := make(map[string]int, n)
	seen := map[int]int{}
	for i, key := range p.Keys {
		root := find(i)
		if _, ok := seen[root]; !ok {
			seen[root] = len(seen)
		}
		out[key] = seen[root]
	}
	return out, nil
}

// ShortestPath returns the node keys along one shortest directed path from
// start to end (inclusive), found by breadth-first search. It returns an
// error when either endpoint is missing and nil when no path exists.
func ShortestPath(ctx context.Context, p *Projection, startKey, endKey string) ([]string, error) {
	start := p.IndexOf(startKey)
	end := p.IndexOf(endKey)
	if start < 0 {
		return nil, fmt.Errorf("start node %s not in projection", startKey)
	}
	if end < 0 {
		return nil, fmt.Errorf("end node %s not in projection", endKey)
	}
	if start == end {
		return []string{startKey}, nil
	}

	prev := make([]int, p.Size())
	for i := range prev {
		prev[i] = -1
	}
	queue := []int{start}
	prev[start] = start
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := queue[0]
		queue = queue[1:]
		for _, w := range p.Out[v] {
			if prev[w] != -1 {
				continue
			}
			prev[w] = v
			if w == end {
				return reconstructPath(p, prev, start, end), nil
			}
			queue = append(queue, w)
		}
	}
	return nil, nil
}

func reconstructPath(p *Projection, prev []int, start, end int) []string {
	var path []string
	for v := end; ; v = prev[v] {
		path = append(path, p.Keys[v])
		if v == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
