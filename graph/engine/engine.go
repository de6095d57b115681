// Package engine implements the embedded property-graph store backing one
// (clientProjectRoot, repository, branch) memory bank. One Database owns one
// file; writes are serialized per database, reads work on snapshots.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Known node labels of the memory bank. The engine itself is label-agnostic;
// callers use these for the typed entities.
const (
	LabelComponent = "Component"
	LabelDecision  = "Decision"
	LabelRule      = "Rule"
	LabelFile      = "File"
	LabelTag       = "Tag"
	LabelContext   = "Context"
	LabelMetadata  = "Metadata"
)

// Node is a labeled property node. IDs are unique within a label.
type Node struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Relationship is a typed directed edge between two nodes.
type Relationship struct {
	FromLabel  string                 `json:"fromLabel"`
	FromID     string                 `json:"fromId"`
	ToLabel    string                 `json:"toLabel"`
	ToID       string                 `json:"toId"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// nodeKey identifies a node across labels.
type nodeKey struct {
	Label string
	ID    string
}

func (k nodeKey) String() string { return k.Label + ":" + k.ID }

// Database is one open graph file.
type Database struct {
	mu    sync.RWMutex
	path  string
	nodes map[nodeKey]*Node
	rels  []*Relationship
	// adjacency indexes, rebuilt incrementally
	out map[nodeKey][]*Relationship
	in  map[nodeKey][]*Relationship

	closed bool
	dirty  bool
}

// persisted is the on-disk layout of a database file.
type persisted struct {
	Version int             `json:"version"`
	Nodes   []*Node         `json:"nodes"`
	Rels    []*Relationship `json:"relationships"`
}

const fileVersion = 1

// Open loads the database at path, creating an empty one (and its parent
// directory) if the file does not exist.
func Open(path string) (*Database, error) {
	db := &Database{
		path:  path,
		nodes: make(map[nodeKey]*Node),
		out:   make(map[nodeKey][]*Relationship),
		in:    make(map[nodeKey][]*Relationship),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := db.flushLocked(); err != nil {
			return nil, err
		}
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read database file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse database file %s: %w", path, err)
	}
	for _, n := range p.Nodes {
		db.nodes[nodeKey{n.Label, n.ID}] = n
	}
	for _, r := range p.Rels {
		db.addRelLocked(r)
	}
	return db, nil
}

// Path returns the backing file path.
func (db *Database) Path() string { return db.path }

// Close flushes pending changes and marks the database closed.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.dirty {
		return db.flushLocked()
	}
	return nil
}

// flushLocked writes the file atomically. Caller holds the write lock.
func (db *Database) flushLocked() error {
	p := persisted{Version: fileVersion, Rels: db.rels}
	p.Nodes = make([]*Node, 0, len(db.nodes))
	for _, n := range db.nodes {
		p.Nodes = append(p.Nodes, n)
	}
	sort.Slice(p.Nodes, func(i, j int) bool {
		if p.Nodes[i].Label != p.Nodes[j].Label {
			return p.Nodes[i].Label < p.Nodes[j].Label
		}
		return p.Nodes[i].ID < p.Nodes[j].ID
	})

	data, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("failed to serialize database: %w", err)
	}
	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write database file: %w", err)
	}
	if err := os.Rename(tmp, db.path); err != nil {
		return fmt.Errorf("failed to replace database file: %w", err)
	}
	db.dirty = false
	return nil
}

// Flush persists pending changes.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.dirty {
		return nil
	}
	return db.flushLocked()
}

var ErrClosed = fmt.Errorf("database is closed")

// UpsertNode creates or updates a node and returns the stored copy.
func (db *Database) UpsertNode(label, id string, props map[string]interface{}) (*Node, error) {
	if label == "" || id == "" {
		return nil, fmt.Errorf("node label and id are required")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	key := nodeKey{label, id}
	now := time.Now().UTC()
	if existing, ok := db.nodes[key]; ok {
		if existing.Properties == nil {
			existing.Properties = make(map[string]interface{})
		}
		for k, v := range props {
			existing.Properties[k] = v
		}
		existing.UpdatedAt = now
		db.dirty = true
		return copyNode(existing), db.flushLocked()
	}

	n := &Node{ID: id, Label: label, Properties: props, CreatedAt: now, UpdatedAt: now}
	if n.Properties == nil {
		n.Properties = make(map[string]interface{})
	}
	db.nodes[key] = n
	db.dirty = true
	return copyNode(n), db.flushLocked()
}

// GetNode returns a copy of the node, or nil if absent.
func (db *Database) GetNode(label, id string) (*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	n, ok := db.nodes[nodeKey{label, id}]
	if !ok {
		return nil, nil
	}
	return copyNode(n), nil
}

// DeleteNode removes a node and every relationship touching it. Returns
// whether the node existed.
func (db *Database) DeleteNode(label, id string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false, ErrClosed
	}
	key := nodeKey{label, id}
	if _, ok := db.nodes[key]; !ok {
		return false, nil
	}
	delete(db.nodes, key)

	kept := db.rels[:0]
	for _, r := range db.rels {
		if (r.FromLabel == label && r.FromID == id) || (r.ToLabel == label && r.ToID == id) {
			continue
		}
		kept = append(kept, r)
	}
	db.rels = kept
	db.rebuildAdjacencyLocked()
	db.dirty = true
	return true, db.flushLocked()
}

// ListNodes returns copies of all nodes with the given label, sorted by id.
func (db *Database) ListNodes(label string) ([]*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	var out []*Node
	for key, n := range db.nodes {
		if key.Label == label {
			out = append(out, copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Labels returns the distinct node labels present, sorted.
func (db *Database) Labels() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	seen := map[string]bool{}
	for key := range db.nodes {
		seen[key.Label] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// CountNodes returns the number of nodes with the given label; an empty
// label counts everything.
func (db *Database) CountNodes(label string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if label == "" {
		return len(db.nodes)
	}
	count := 0
	for key := range db.nodes {
		if key.Label == label {
			count++
		}
	}
	return count
}

// CreateRelationship links two existing nodes. Duplicate (from, to, type)
// edges are replaced.
func (db *Database) CreateRelationship(fromLabel, fromID, toLabel, toID, relType string, props map[string]interface{}) (*Relationship, error) {
	if relType == "" {
		return nil, fmt.Errorf("relationship type is required")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if _, ok := db.nodes[nodeKey{fromLabel, fromID}]; !ok {
		return nil, fmt.Errorf("source node %s:%s not found", fromLabel, fromID)
	}
	if _, ok := db.nodes[nodeKey{toLabel, toID}]; !ok {
		return nil, fmt.Errorf("target node %s:%s not found", toLabel, toID)
	}

	for idx, r := range db.rels {
		if r.FromLabel == fromLabel && r.FromID == fromID &&
			r.ToLabel == toLabel && r.ToID == toID && r.Type == relType {
			db.rels = append(db.rels[:idx], db.rels[idx+1:]...)
			db.rebuildAdjacencyLocked()
			break
		}
	}

	rel := &Relationship{
		FromLabel: fromLabel, FromID: fromID,
		ToLabel: toLabel, ToID: toID,
		Type: relType, Properties: props,
		CreatedAt: time.Now().UTC(),
	}
	db.rels = append(db.rels, rel)
	db.addRelLocked(rel)
	db.dirty = true
	return rel, db.flushLocked()
}

// Relationships returns all edges of the given type; empty type means all.
func (db *Database) Relationships(relType string) []*Relationship {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Relationship
	for _, r := range db.rels {
		if relType == "" || r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

// Neighbors returns the nodes reachable over one outgoing (or incoming, when
// reverse is true) edge of the given type from the start node.
func (db *Database) Neighbors(label, id, relType string, reverse bool) ([]*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	key := nodeKey{label, id}
	index := db.out
	if reverse {
		index = db.in
	}
	var out []*Node
	for _, r := range index[key] {
		if relType != "" && r.Type != relType {
			continue
		}
		other := nodeKey{r.ToLabel, r.ToID}
		if reverse {
			other = nodeKey{r.FromLabel, r.FromID}
		}
		if n, ok := db.nodes[other]; ok {
			out = append(out, copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Search returns nodes whose id or any string property contains the query,
// case-insensitive, optionally restricted to a set of labels.
func (db *Database) Search(ctx context.Context, query string, labels []string) ([]*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	wanted := map[string]bool{}
	for _, l := range labels {
		wanted[l] = true
	}
	needle := strings.ToLower(query)
	var out []*Node
	i := 0
	for key, n := range db.nodes {
		if i++; i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(wanted) > 0 && !wanted[key.Label] {
			continue
		}
		if nodeMatches(n, needle) {
			out = append(out, copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func nodeMatches(n *Node, needle string) bool {
	if strings.Contains(strings.ToLower(n.ID), needle) {
		return true
	}
	for _, v := range n.Properties {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func (db *Database) addRelLocked(r *Relationship) {
	from := nodeKey{r.FromLabel, r.FromID}
	to := nodeKey{r.ToLabel, r.ToID}
	db.out[from] = append(db.out[from], r)
	db.in[to] = append(db.in[to], r)
}

func (db *Database) rebuildAdjacencyLocked() {
	db.out = make(map[nodeKey][]*Relationship)
	db.in = make(map[nodeKey][]*Relationship)
	for _, r := range db.rels {
		db.addRelLocked(r)
	}
}

func copyNode(n *Node) *Node {
	props := make(map[string]interface{}, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return &Node{ID: n.ID, Label: n.Label, Properties: props, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt}
}
