package idmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(Options{})
	require.NoError(t, err)
	return r
}

func TestCreateNodeAndLookup(t *testing.T) {
	r := newRegistry(t)

	u, err := r.CreateNode(7)
	require.NoError(t, err)
	require.NotEmpty(t, u)

	got, ok := r.NodeULID(7)
	require.True(t, ok)
	assert.Equal(t, u, got)

	legacy, ok := r.NodeLegacy(u)
	require.True(t, ok)
	assert.Equal(t, int32(7), legacy)

	_, err = r.CreateNode(7)
	assert.ErrorIs(t, err, errors.ErrIDCollision)
}

func TestEnsureNodeAssignsSequentially(t *testing.T) {
	r, err := New(Options{StartingID: 500})
	require.NoError(t, err)

	assert.Equal(t, int32(500), r.EnsureNode("01HKWW8S7R4G2Q6M0B3E9Z5XTA"))
	assert.Equal(t, int32(501), r.EnsureNode("01HKWW8S7R4G2Q6M0B3E9Z5XTB"))
	// Re-ensuring a known ULID does not burn an id.
	assert.Equal(t, int32(500), r.EnsureNode("01HKWW8S7R4G2Q6M0B3E9Z5XTA"))
	assert.Equal(t, int32(502), r.EnsureNode("01HKWW8S7R4G2Q6M0B3E9Z5XTC"))
}

func TestStaticNodesPreseeded(t *testing.T) {
	r, err := New(Options{StaticNodes: map[int32]string{
		1: "01HKWW8S7R4G2Q6M0B3E9Z5XTA",
		2: "01HKWW8S7R4G2Q6M0B3E9Z5XTB",
	}})
	require.NoError(t, err)

	u, ok := r.NodeULID(1)
	require.True(t, ok)
	assert.Equal(t, "01HKWW8S7R4G2Q6M0B3E9Z5XTA", u)

	legacy, ok := r.NodeLegacy("01HKWW8S7R4G2Q6M0B3E9Z5XTB")
	require.True(t, ok)
	assert.Equal(t, int32(2), legacy)
}

func TestStaticNodesDuplicateULIDRejected(t *testing.T) {
	_, err := New(Options{StaticNodes: map[int32]string{
		1: "01HKWW8S7R4G2Q6M0B3E9Z5XTA",
		2: "01HKWW8S7R4G2Q6M0B3E9Z5XTA",
	}})
	assert.ErrorIs(t, err, errors.ErrIDCollision)
}

func TestVirtualizeScopes(t *testing.T) {
	r := newRegistry(t)

	nodeA, err := r.CreateNode(1)
	require.NoError(t, err)
	nodeB, err := r.CreateNode(2)
	require.NoError(t, err)

	// Report id 10 in node A is a different identifier from report id 10
	// in node B.
	ua, err := r.Virtualize("report_id", nodeA, 10)
	require.NoError(t, err)
	ub, err := r.Virtualize("report_id", nodeB, 10)
	require.NoError(t, err)
	assert.NotEqual(t, ua, ub)

	// Same node, same integer: stable.
	again, err := r.Virtualize("report_id", nodeA, 10)
	require.NoError(t, err)
	assert.Equal(t, ua, again)

	// task_id and active_task_id share a space within the node.
	task, err := r.Virtualize("task_id", nodeA, 3)
	require.NoError(t, err)
	active, err := r.Virtualize("active_task_id", nodeA, 3)
	require.NoError(t, err)
	assert.Equal(t, task, active)

	// Region ids are global.
	ra, err := r.Virtualize("region_id", nodeA, 5)
	require.NoError(t, err)
	rb, err := r.Virtualize("region_id", nodeB, 5)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestVirtualizeNodeFieldsShareNodeMap(t *testing.T) {
	r := newRegistry(t)

	u, err := r.Virtualize("node_id", "", 9)
	require.NoError(t, err)
	dest, err := r.Virtualize("destination_id", "", 9)
	require.NoError(t, err)
	assert.Equal(t, u, dest)

	legacy, ok := r.NodeLegacy(u)
	require.True(t, ok)
	assert.Equal(t, int32(9), legacy)
}

func TestVirtualizeUnknownField(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Virtualize("dependent_nodes", "", 1)
	assert.ErrorIs(t, err, errors.ErrIDUnknown)
}

func TestDevirtualizeRoundTrip(t *testing.T) {
	r := newRegistry(t)
	node, err := r.CreateNode(1)
	require.NoError(t, err)

	u, err := r.Virtualize("object_id", node, 42)
	require.NoError(t, err)
	legacy, err := r.Devirtualize("object_id", node, u)
	require.NoError(t, err)
	assert.Equal(t, int32(42), legacy)

	// A never-seen ULID gets the next auto id.
	fresh, err := r.Devirtualize("object_id", node, r.NewULID())
	require.NoError(t, err)
	assert.Equal(t, int32(DefaultStartingID), fresh)
}

func TestInsertRejectsRebinding(t *testing.T) {
	r := newRegistry(t)
	node, err := r.CreateNode(1)
	require.NoError(t, err)

	u := r.NewULID()
	require.NoError(t, r.Insert("task_id", node, 5, u))
	// Identical pair is idempotent.
	require.NoError(t, r.Insert("task_id", node, 5, u))

	assert.ErrorIs(t, r.Insert("task_id", node, 5, r.NewULID()), errors.ErrIDCollision)
	assert.ErrorIs(t, r.Insert("task_id", node, 6, u), errors.ErrIDCollision)
}
