package gateway

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// DetectionFilterOptions configures the Child confidence filter.
type DetectionFilterOptions struct {
	Enable bool
	// Threshold rejects detections below it. Meaningful values are in (0, 1).
	Threshold float64
	// StoreInDatabase persists filtered detections as Silent errors instead
	// of discarding them entirely.
	StoreInDatabase bool
}

// Options fixes gateway-wide behavior from configuration.
type Options struct {
	// MiddlewareNodeID identifies this gateway in messages it originates.
	// Empty means a random UUID.
	MiddlewareNodeID string
	// SendRegistrationAck acknowledges Child registrations. Peers are always
	// acknowledged regardless.
	SendRegistrationAck bool
	// AllowPeerRegistration permits registration messages from Peers.
	AllowPeerRegistration bool
	// EnableTimeSync shifts embedded timestamps by the per-Child clock offset.
	EnableTimeSync bool
	// EnableConversion mirrors the parser's conversion toggle; without it
	// mixed-encoding forwarding is not possible.
	EnableConversion bool
	DetectionFilter  DetectionFilterOptions
}

// SensorInfo is the shared registry entry for one registered Child.
// All fields are guarded by the owning SharedData's mutex.
type SensorInfo struct {
	Writer       *ConnectionWriter
	Registration *message.Record
	// PeerOffset is added to Peer-to-Child message timestamps so tasks land
	// in the sensor's view of time.
	PeerOffset            time.Duration
	RecentStatusNew       *message.Record
	RecentStatusUnchanged *message.Record
}

// SharedData is the routing state shared by every connection of one gateway.
type SharedData struct {
	logger       *slog.Logger
	opts         Options
	ids          *idmap.Registry
	middlewareID string

	mu          sync.Mutex
	sensors     map[string]*SensorInfo
	peers       []*ConnectionWriter
	parentsHigh []*ConnectionWriter
	parentsAll  []*ConnectionWriter
}

// NewSharedData builds the shared routing state.
func NewSharedData(logger *slog.Logger, ids *idmap.Registry, opts Options) *SharedData {
	id := opts.MiddlewareNodeID
	if id == "" {
		id = uuid.NewString()
	}
	return &SharedData{
		logger:       logger.With("component", "gateway"),
		opts:         opts,
		ids:          ids,
		middlewareID: id,
		sensors:      make(map[string]*SensorInfo),
	}
}

// MiddlewareNodeID returns the gateway's own node identifier.
func (s *SharedData) MiddlewareNodeID() string { return s.middlewareID }

// IDs returns the identifier registry the gateway routes with.
func (s *SharedData) IDs() *idmap.Registry { return s.ids }

// RegisterSensor records or replaces a Child's registry entry.
func (s *SharedData) RegisterSensor(nodeID string, info *SensorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors[nodeID] = info
}

// UnregisterSensor removes a Child's entry, but only while the given writer
// still owns it. Returns whether an entry was removed.
func (s *SharedData) UnregisterSensor(nodeID string, w *ConnectionWriter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sensors[nodeID]
	if !ok || info.Writer != w {
		return false
	}
	delete(s.sensors, nodeID)
	return true
}

// SensorOwnedBy reports whether the Child entry exists and still belongs to
// the given writer.
func (s *SharedData) SensorOwnedBy(nodeID string, w *ConnectionWriter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sensors[nodeID]
	return ok && info.Writer == w
}

// ResetSensorRegistration replaces a re-registering Child's registration and
// clears its cached status reports.
func (s *SharedData) ResetSensorRegistration(nodeID string, reg *message.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sensors[nodeID]
	if !ok {
		return
	}
	info.Registration = reg
	info.RecentStatusNew = nil
	info.RecentStatusUnchanged = nil
}

// CacheStatus records a Child's most recent status report for replay. A new
// report supersedes any cached unchanged one.
func (s *SharedData) CacheStatus(nodeID string, rec *message.Record, unchanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sensors[nodeID]
	if !ok {
		return
	}
	if unchanged {
		info.RecentStatusUnchanged = rec
	} else {
		info.RecentStatusNew = rec
		info.RecentStatusUnchanged = nil
	}
}

// SensorRoute resolves a destination Child for Peer forwarding.
func (s *SharedData) SensorRoute(nodeID string) (w *ConnectionWriter, offset time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, found := s.sensors[nodeID]
	if !found {
		return nil, 0, false
	}
	return info.Writer, info.PeerOffset, true
}

// sensorSnapshot is one Child's replayable state.
type sensorSnapshot struct {
	registration    *message.Record
	statusNew       *message.Record
	statusUnchanged *message.Record
}

func (s *SharedData) snapshotSensors() []sensorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sensorSnapshot, 0, len(s.sensors))
	for _, info := range s.sensors {
		out = append(out, sensorSnapshot{
			registration:    info.Registration,
			statusNew:       info.RecentStatusNew,
			statusUnchanged: info.RecentStatusUnchanged,
		})
	}
	return out
}

// ReplaySensorState writes every registered Child's registration and most
// recent status reports to a newly connected Peer or forward-all Parent.
func (s *SharedData) ReplaySensorState(w *ConnectionWriter) {
	for _, snap := range s.snapshotSensors() {
		s.replayOne(w, snap.registration)
		s.replayOne(w, snap.statusNew)
		s.replayOne(w, snap.statusUnchanged)
	}
}

func (s *SharedData) replayOne(w *ConnectionWriter, rec *message.Record) {
	if rec == nil {
		return
	}
	if err := w.WriteRecord(rec); err != nil {
		s.logger.Warn("replay write failed", "type", rec.TypeString(), "error", err)
	}
}

// AddPeer registers a Peer writer for Child fan-out.
func (s *SharedData) AddPeer(w *ConnectionWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers, w)
}

// RemovePeer drops a Peer writer.
func (s *SharedData) RemovePeer(w *ConnectionWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = removeWriter(s.peers, w)
}

// PeerWriters snapshots the current Peer writer set.
func (s *SharedData) PeerWriters() []*ConnectionWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ConnectionWriter(nil), s.peers...)
}

// AddParent registers a Parent writer in the forward-all or high-level set.
func (s *SharedData) AddParent(w *ConnectionWriter, forwardAll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if forwardAll {
		s.parentsAll = append(s.parentsAll, w)
	} else {
		s.parentsHigh = append(s.parentsHigh, w)
	}
}

// RemoveParent drops a Parent writer from its set.
func (s *SharedData) RemoveParent(w *ConnectionWriter, forwardAll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if forwardAll {
		s.parentsAll = removeWriter(s.parentsAll, w)
	} else {
		s.parentsHigh = removeWriter(s.parentsHigh, w)
	}
}

func removeWriter(ws []*ConnectionWriter, w *ConnectionWriter) []*ConnectionWriter {
	for i, cur := range ws {
		if cur == w {
			return append(ws[:i], ws[i+1:]...)
		}
	}
	return ws
}

// SendToParents forwards a non-errored record to the forward-all Parents,
// plus the high-level set when highLevel is true, skipping except.
func (s *SharedData) SendToParents(rec *message.Record, highLevel bool, except *ConnectionWriter) {
	if rec.Error != nil {
		return
	}
	s.mu.Lock()
	writers := append([]*ConnectionWriter(nil), s.parentsAll...)
	if highLevel {
		writers = append(writers, s.parentsHigh...)
	}
	s.mu.Unlock()
	for _, w := range writers {
		if w == except {
			continue
		}
		if err := w.WriteRecord(rec); err != nil {
			s.logger.Warn("parent write failed", "type", rec.TypeString(), "error", err)
			continue
		}
		rec.ForwardedCount++
	}
}

// SendToPeers forwards a record to every connected Peer, adding successful
// writes to the record's forwarded count.
func (s *SharedData) SendToPeers(rec *message.Record) {
	for _, w := range s.PeerWriters() {
		if err := w.WriteRecord(rec); err != nil {
			s.logger.Warn("peer write failed", "type", rec.TypeString(), "error", err)
			continue
		}
		rec.ForwardedCount++
	}
}

// SendRegistrationAck acknowledges a registration to the given writer. XML
// connections get a SensorRegistrationACK element carrying the node's legacy
// integer id; binary connections get a registration_ack envelope.
func (s *SharedData) SendRegistrationAck(w *ConnectionWriter, destinationID string) {
	if w.Encoding() == EncodingXML {
		legacy, ok := s.ids.NodeLegacy(destinationID)
		if !ok {
			s.logger.Warn("registration ack skipped, node has no legacy id", "node", destinationID)
			return
		}
		elem := etree.NewElement("SensorRegistrationACK")
		elem.CreateElement("sensorID").SetText(strconv.FormatInt(int64(legacy), 10))
		elem.CreateElement("timestamp").SetText(timeutil.Format(time.Now().UTC()))
		if err := w.WriteXML(elem); err != nil {
			s.logger.Warn("registration ack write failed", "node", destinationID, "error", err)
		}
		return
	}

	env := sapient.New(sapient.EnvelopeV2)
	env.Set("timestamp", time.Now().UTC())
	env.Set("node_id", s.middlewareID)
	env.Set("destination_id", destinationID)
	env.Mutable("registration_ack").Set("acceptance", true)
	if err := w.WriteEnvelope(env, sapient.VersionBSIFlex335V2); err != nil {
		s.logger.Warn("registration ack write failed", "node", destinationID, "error", err)
	}
}
