// Package idmap maintains the bidirectional mapping between the legacy
// protocol's small integer identifiers and the ULIDs the binary protocol
// versions use. Node identifiers live in one shared map; task, report and
// object identifiers are scoped to the node that issued them; region and
// alert identifiers are global.
package idmap

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
)

// DefaultStartingID is the first legacy identifier handed out when a ULID
// arrives with no existing mapping.
const DefaultStartingID = 1000001

// Options configures a Registry.
type Options struct {
	// StartingID is the first auto-assigned legacy identifier. Zero means
	// DefaultStartingID.
	StartingID int32
	// StaticNodes preseeds legacy node id to ULID pairs from configuration,
	// so fixed deployments keep stable identifiers across restarts.
	StaticNodes map[int32]string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	next    int32
	entropy *ulid.MonotonicEntropy

	nodes    map[int32]string
	nodesRev map[string]int32

	perNode map[string]*nodeScopes

	regions *pairing
	alerts  *pairing
}

// nodeScopes holds the per-node identifier spaces.
type nodeScopes struct {
	tasks   *pairing
	reports *pairing
	objects *pairing
}

type pairing struct {
	fwd map[int32]string
	rev map[string]int32
}

func newPairing() *pairing {
	return &pairing{fwd: make(map[int32]string), rev: make(map[string]int32)}
}

// New builds a registry, preseeding any static node mappings. A static
// table that maps two legacy ids to one ULID is a configuration error.
func New(opts Options) (*Registry, error) {
	next := opts.StartingID
	if next == 0 {
		next = DefaultStartingID
	}
	r := &Registry{
		next:     next,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		nodes:    make(map[int32]string),
		nodesRev: make(map[string]int32),
		perNode:  make(map[string]*nodeScopes),
		regions:  newPairing(),
		alerts:   newPairing(),
	}
	for legacy, u := range opts.StaticNodes {
		if prior, ok := r.nodesRev[u]; ok {
			return nil, fmt.Errorf("static node ids %d and %d share ULID %s: %w",
				prior, legacy, u, errors.ErrIDCollision)
		}
		r.nodes[legacy] = u
		r.nodesRev[u] = legacy
	}
	return r, nil
}

// NewULID mints a fresh ULID.
func (r *Registry) NewULID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newULIDLocked()
}

func (r *Registry) newULIDLocked() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// NodeULID looks up the ULID for a legacy node id.
func (r *Registry) NodeULID(legacy int32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.nodes[legacy]
	return u, ok
}

// NodeLegacy looks up the legacy id for a node ULID.
func (r *Registry) NodeLegacy(u string) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	legacy, ok := r.nodesRev[u]
	return legacy, ok
}

// CreateNode mints a ULID for a previously unseen legacy node id. Reusing a
// legacy id that is already mapped is rejected.
func (r *Registry) CreateNode(legacy int32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.nodes[legacy]; ok {
		return "", fmt.Errorf("legacy node id %d already maps to %s: %w",
			legacy, u, errors.ErrIDCollision)
	}
	u := r.newULIDLocked()
	r.nodes[legacy] = u
	r.nodesRev[u] = legacy
	return u, nil
}

// EnsureNode returns the legacy id for a node ULID, assigning the next
// available id when the ULID is new.
func (r *Registry) EnsureNode(u string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if legacy, ok := r.nodesRev[u]; ok {
		return legacy
	}
	legacy := r.nextLocked()
	r.nodes[legacy] = u
	r.nodesRev[u] = legacy
	return legacy
}

// NextLegacyID allocates the next integer id without binding it. Used when
// a legacy registration arrives with no sensor id: the allocated integer is
// spliced into the message and the node mapping is created when the
// registration is translated.
func (r *Registry) NextLegacyID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextLocked()
}

func (r *Registry) nextLocked() int32 {
	id := r.next
	r.next++
	return id
}

// scopeFor resolves the identifier space a ULID-valued field belongs to.
// Node ids share the node map and are handled by the caller.
func (r *Registry) scopeFor(field, nodeULID string) (*pairing, error) {
	switch field {
	case "region_id":
		return r.regions, nil
	case "alert_id":
		return r.alerts, nil
	case "task_id", "active_task_id", "report_id", "object_id":
		ns, ok := r.perNode[nodeULID]
		if !ok {
			ns = &nodeScopes{
				tasks:   newPairing(),
				reports: newPairing(),
				objects: newPairing(),
			}
			r.perNode[nodeULID] = ns
		}
		switch field {
		case "task_id", "active_task_id":
			return ns.tasks, nil
		case "report_id":
			return ns.reports, nil
		default:
			return ns.objects, nil
		}
	}
	return nil, fmt.Errorf("field %q carries no mapped identifier: %w", field, errors.ErrIDUnknown)
}

// Virtualize maps a legacy identifier to its ULID within the field's scope,
// minting one for a previously unseen integer. nodeULID names the owning
// node for node-scoped fields and is ignored for global ones.
func (r *Registry) Virtualize(field, nodeULID string, legacy int32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if field == "node_id" || field == "destination_id" {
		if u, ok := r.nodes[legacy]; ok {
			return u, nil
		}
		u := r.newULIDLocked()
		r.nodes[legacy] = u
		r.nodesRev[u] = legacy
		return u, nil
	}
	scope, err := r.scopeFor(field, nodeULID)
	if err != nil {
		return "", err
	}
	if u, ok := scope.fwd[legacy]; ok {
		return u, nil
	}
	u := r.newULIDLocked()
	scope.fwd[legacy] = u
	scope.rev[u] = legacy
	return u, nil
}

// Devirtualize maps a ULID back to its legacy identifier within the field's
// scope, assigning the next available integer when the ULID is new.
func (r *Registry) Devirtualize(field, nodeULID, u string) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if field == "node_id" || field == "destination_id" {
		if legacy, ok := r.nodesRev[u]; ok {
			return legacy, nil
		}
		legacy := r.nextLocked()
		r.nodes[legacy] = u
		r.nodesRev[u] = legacy
		return legacy, nil
	}
	scope, err := r.scopeFor(field, nodeULID)
	if err != nil {
		return 0, err
	}
	if legacy, ok := scope.rev[u]; ok {
		return legacy, nil
	}
	legacy := r.nextLocked()
	scope.fwd[legacy] = u
	scope.rev[u] = legacy
	return legacy, nil
}

// Insert records an explicit legacy to ULID pair in the field's scope.
// A legacy id or ULID already bound to a different partner is rejected, so
// a misbehaving sensor cannot silently remap another node's identifiers.
func (r *Registry) Insert(field, nodeULID string, legacy int32, u string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if field == "node_id" || field == "destination_id" {
		return insertPair(r.nodes, r.nodesRev, field, legacy, u)
	}
	scope, err := r.scopeFor(field, nodeULID)
	if err != nil {
		return err
	}
	return insertPair(scope.fwd, scope.rev, field, legacy, u)
}

func insertPair(fwd map[int32]string, rev map[string]int32, field string, legacy int32, u string) error {
	if prior, ok := fwd[legacy]; ok {
		if prior == u {
			return nil
		}
		return fmt.Errorf("%s %d already maps to %s: %w", field, legacy, prior, errors.ErrIDCollision)
	}
	if prior, ok := rev[u]; ok {
		return fmt.Errorf("%s %s already maps to %d: %w", field, u, prior, errors.ErrIDCollision)
	}
	fwd[legacy] = u
	rev[u] = legacy
	return nil
}
