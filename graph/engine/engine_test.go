package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/graph/engine"
)

func openTestDB(t *testing.T) *engine.Database {
	t.Helper()
	db, err := engine.Open(filepath.Join(t.TempDir(), "bank", "main.gmdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertNodeCreateAndUpdate(t *testing.T) {
	db := openTestDB(t)

	created, err := db.UpsertNode(engine.LabelComponent, "auth", map[string]interface{}{"name": "Auth Service"})
	require.NoError(t, err)
	assert.Equal(t, "auth", created.ID)
	assert.Equal(t, engine.LabelComponent, created.Label)
	assert.Equal(t, "Auth Service", created.Properties["name"])
	assert.False(t, created.CreatedAt.IsZero())

	// Update merges properties and keeps CreatedAt.
	updated, err := db.UpsertNode(engine.LabelComponent, "auth", map[string]interface{}{"owner": "platform"})
	require.NoError(t, err)
	assert.Equal(t, "Auth Service", updated.Properties["name"])
	assert.Equal(t, "platform", updated.Properties["owner"])
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	assert.Equal(t, 1, db.CountNodes(engine.LabelComponent))
}

func TestUpsertNodeRequiresLabelAndID(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode("", "x", nil)
	assert.Error(t, err)
	_, err = db.UpsertNode(engine.LabelComponent, "", nil)
	assert.Error(t, err)
}

func TestGetNodeAbsentReturnsNil(t *testing.T) {
	db := openTestDB(t)

	node, err := db.GetNode(engine.LabelComponent, "missing")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestGetNodeReturnsCopy(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode(engine.LabelComponent, "auth", map[string]interface{}{"name": "Auth"})
	require.NoError(t, err)

	first, err := db.GetNode(engine.LabelComponent, "auth")
	require.NoError(t, err)
	first.Properties["name"] = "mutated"

	second, err := db.GetNode(engine.LabelComponent, "auth")
	require.NoError(t, err)
	assert.Equal(t, "Auth", second.Properties["name"])
}

func TestDeleteNodeCascadesRelationships(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode(engine.LabelComponent, "a", nil)
	require.NoError(t, err)
	_, err = db.UpsertNode(engine.LabelComponent, "b", nil)
	require.NoError(t, err)
	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "b", "DEPENDS_ON", nil)
	require.NoError(t, err)

	deleted, err := db.DeleteNode(engine.LabelComponent, "b")
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.Empty(t, db.Relationships(""))
	neighbors, err := db.Neighbors(engine.LabelComponent, "a", "", false)
	require.NoError(t, err)
	assert.Empty(t, neighbors)

	deleted, err = db.DeleteNode(engine.LabelComponent, "b")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateRelationshipValidatesEndpoints(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode(engine.LabelComponent, "a", nil)
	require.NoError(t, err)

	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "ghost", "DEPENDS_ON", nil)
	assert.Error(t, err)
	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "a", "", nil)
	assert.Error(t, err)
}

func TestCreateRelationshipReplacesDuplicate(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode(engine.LabelComponent, "a", nil)
	require.NoError(t, err)
	_, err = db.UpsertNode(engine.LabelComponent, "b", nil)
	require.NoError(t, err)

	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "b", "DEPENDS_ON", map[string]interface{}{"v": 1})
	require.NoError(t, err)
	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "b", "DEPENDS_ON", map[string]interface{}{"v": 2})
	require.NoError(t, err)

	rels := db.Relationships("DEPENDS_ON")
	require.Len(t, rels, 1)
	assert.Equal(t, 2, rels[0].Properties["v"])
}

func TestNeighborsDirectionAndType(t *testing.T) {
	db := openTestDB(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := db.UpsertNode(engine.LabelComponent, id, nil)
		require.NoError(t, err)
	}
	_, err := db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "b", "DEPENDS_ON", nil)
	require.NoError(t, err)
	_, err = db.CreateRelationship(engine.LabelComponent, "a", engine.LabelComponent, "c", "RELATED_TO", nil)
	require.NoError(t, err)

	out, err := db.Neighbors(engine.LabelComponent, "a", "DEPENDS_ON", false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	any, err := db.Neighbors(engine.LabelComponent, "a", "", false)
	require.NoError(t, err)
	assert.Len(t, any, 2)

	in, err := db.Neighbors(engine.LabelComponent, "b", "DEPENDS_ON", true)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "a", in[0].ID)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank", "main.gmdb")

	db, err := engine.Open(path)
	require.NoError(t, err)
	_, err = db.UpsertNode(engine.LabelComponent, "auth", map[string]interface{}{"name": "Auth"})
	require.NoError(t, err)
	_, err = db.UpsertNode(engine.LabelDecision, "d1", nil)
	require.NoError(t, err)
	_, err = db.CreateRelationship(engine.LabelDecision, "d1", engine.LabelComponent, "auth", "GOVERNS", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := engine.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	node, err := reopened.GetNode(engine.LabelComponent, "auth")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "Auth", node.Properties["name"])

	assert.Equal(t, []string{engine.LabelComponent, engine.LabelDecision}, reopened.Labels())
	require.Len(t, reopened.Relationships("GOVERNS"), 1)
}

func TestClosedDatabaseRejectsWrites(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	_, err := db.UpsertNode(engine.LabelComponent, "x", nil)
	assert.ErrorIs(t, err, engine.ErrClosed)
	_, err = db.GetNode(engine.LabelComponent, "x")
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestSearch(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertNode(engine.LabelComponent, "auth-service", map[string]interface{}{"description": "Handles OAuth flows"})
	require.NoError(t, err)
	_, err = db.UpsertNode(engine.LabelDecision, "use-postgres", map[string]interface{}{"summary": "Relational storage"})
	require.NoError(t, err)

	ctx := context.Background()

	// Matches id, case-insensitive.
	hits, err := db.Search(ctx, "AUTH", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "auth-service", hits[0].ID)

	// Matches string property.
	hits, err = db.Search(ctx, "relational", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "use-postgres", hits[0].ID)

	// Label filter excludes non-matching labels.
	hits, err = db.Search(ctx, "s", []string{engine.LabelComponent})
	require.NoError(t, err)
	for _, n := range hits {
		assert.Equal(t, engine.LabelComponent, n.Label)
	}
}

func TestListNodesSortedByID(t *testing.T) {
	db := openTestDB(t)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := db.UpsertNode(engine.LabelComponent, id, nil)
		require.NoError(t, err)
	}

	nodes, err := db.ListNodes(engine.LabelComponent)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "alpha", nodes[0].ID)
	assert.Equal(t, "bravo", nodes[1].ID)
	assert.Equal(t, "charlie", nodes[2].ID)
}
