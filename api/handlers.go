package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/storage"
)

type rootResponse struct {
	Info    string `json:"info"`
	Version string `json:"version"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type nodeLocationResponse struct {
	NodeID       string         `json:"node_id"`
	Timestamp    string         `json:"timestamp"`
	NodeLocation map[string]any `json:"node_location"`
}

type fieldOfViewResponse struct {
	NodeID      string         `json:"node_id"`
	Timestamp   string         `json:"timestamp"`
	FieldOfView map[string]any `json:"field_of_view"`
}

type detectionResponse struct {
	NodeID          string         `json:"node_id"`
	Timestamp       string         `json:"timestamp"`
	DetectionReport map[string]any `json:"detection_report"`
}

type associatedFilesResponse struct {
	NodeID          string `json:"node_id"`
	Timestamp       string `json:"timestamp"`
	AssociatedFiles []any  `json:"associated_files"`
}

type nodeDefinitionResponse struct {
	NodeID         string `json:"node_id"`
	Timestamp      string `json:"timestamp"`
	NodeDefinition []any  `json:"node_definition"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) failQuery(w http.ResponseWriter, err error) {
	s.logger.Warn("query failed", "error", err)
	s.fail(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) store(w http.ResponseWriter) (*storage.Store, bool) {
	store := s.provider.Store()
	if store == nil {
		s.fail(w, http.StatusServiceUnavailable, "Database Service Unavailable or not started.")
		return nil, false
	}
	return store, true
}

// nodeIDs returns the node_ids query values, defaulting to the "all"
// wildcard, plus whether the caller asked for specific nodes.
func nodeIDs(q url.Values) (ids []string, specific bool) {
	ids = q["node_ids"]
	if len(ids) == 0 {
		return []string{"all"}, false
	}
	for _, id := range ids {
		if id == "all" {
			return ids, false
		}
	}
	return ids, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.fail(w, http.StatusNotFound, "not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rootResponse{
		Info:    "REST API to the Apex SAPIENT middleware",
		Version: s.opts.Version,
	})
}

func (s *Server) handleRegistered(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w)
	if !ok {
		return
	}
	ids, err := store.RegisteredNodeIDs()
	if err != nil {
		s.failQuery(w, err)
		return
	}
	if len(ids) == 0 {
		s.fail(w, http.StatusBadRequest, "No Registered Nodes found.")
		return
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// statusField serves locations and fields of view, which differ only in
// the status report field they project.
func (s *Server) statusField(w http.ResponseWriter, r *http.Request, field string,
	respond func(msg storage.NodeMessage, value map[string]any)) (count int) {

	store, ok := s.store(w)
	if !ok {
		return -1
	}
	ids, specific := nodeIDs(r.URL.Query())
	if !specific {
		var err error
		if ids, err = store.RegisteredNodeIDs(); err != nil {
			s.failQuery(w, err)
			return -1
		}
	}

	for _, id := range ids {
		msg, found, err := store.LatestStatusReport(id)
		if err != nil {
			s.failQuery(w, err)
			return -1
		}
		if !found {
			continue
		}
		if value, ok := msg.Message[field].(map[string]any); ok {
			respond(msg, value)
			count++
		}
	}
	if specific && count == 0 {
		s.fail(w, http.StatusBadRequest,
			"node_ids "+strings.Join(ids, ",")+" could not be found")
		return -1
	}
	return count
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	out := []nodeLocationResponse{}
	n := s.statusField(w, r, "node_location", func(msg storage.NodeMessage, value map[string]any) {
		out = append(out, nodeLocationResponse{
			NodeID:       msg.NodeID,
			Timestamp:    timeutil.Format(msg.Timestamp),
			NodeLocation: value,
		})
	})
	if n >= 0 {
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleFieldOfViews(w http.ResponseWriter, r *http.Request) {
	out := []fieldOfViewResponse{}
	n := s.statusField(w, r, "field_of_view", func(msg storage.NodeMessage, value map[string]any) {
		out = append(out, fieldOfViewResponse{
			NodeID:      msg.NodeID,
			Timestamp:   timeutil.Format(msg.Timestamp),
			FieldOfView: value,
		})
	})
	if n >= 0 {
		s.writeJSON(w, http.StatusOK, out)
	}
}

// detectionQuery parses the shared detection filter parameters.
func detectionQuery(q url.Values) (storage.DetectionQuery, error) {
	out := storage.DetectionQuery{Source: storage.DetectionSourceAll, Limit: 10}
	out.NodeIDs, _ = nodeIDs(q)

	var err error
	if v := q.Get("detection_source"); v != "" {
		if out.Source, err = storage.ParseDetectionSource(v); err != nil {
			return out, err
		}
	}
	if v := q.Get("detection_confidence"); v != "" {
		if out.MinConfidence, err = strconv.ParseFloat(v, 64); err != nil {
			return out, err
		}
	}
	out.Classification = q.Get("detection_classification")
	if v := q.Get("detection_from"); v != "" {
		if out.From, err = timeutil.Parse(v); err != nil {
			return out, err
		}
	}
	if v := q.Get("detection_to"); v != "" {
		if out.To, err = timeutil.Parse(v); err != nil {
			return out, err
		}
	}
	if v := q.Get("detection_interval"); v != "" {
		if out.Interval, err = time.ParseDuration(v); err != nil {
			return out, err
		}
	}
	if v := q.Get("detection_count"); v != "" {
		if out.Limit, err = strconv.Atoi(v); err != nil {
			return out, err
		}
	}
	return out, nil
}

// detections runs the shared detection query, or replies with an error and
// returns false.
func (s *Server) detections(w http.ResponseWriter, r *http.Request) ([]storage.NodeMessage, bool) {
	store, ok := s.store(w)
	if !ok {
		return nil, false
	}
	query, err := detectionQuery(r.URL.Query())
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	msgs, err := store.Detections(query)
	if err != nil {
		s.failQuery(w, err)
		return nil, false
	}
	return msgs, true
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.detections(w, r)
	if !ok {
		return
	}
	out := []detectionResponse{}
	for _, msg := range msgs {
		out = append(out, detectionResponse{
			NodeID:          msg.NodeID,
			Timestamp:       timeutil.Format(msg.Timestamp),
			DetectionReport: msg.Message,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetectionLocations(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.detections(w, r)
	if !ok {
		return
	}
	out := []nodeLocationResponse{}
	for _, msg := range msgs {
		location, ok := msg.Message["location"].(map[string]any)
		if !ok {
			continue
		}
		out = append(out, nodeLocationResponse{
			NodeID:       msg.NodeID,
			Timestamp:    timeutil.Format(msg.Timestamp),
			NodeLocation: location,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetectionFiles(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.detections(w, r)
	if !ok {
		return
	}
	out := []associatedFilesResponse{}
	for _, msg := range msgs {
		files, ok := msg.Message["associated_file"].([]any)
		if !ok || len(files) == 0 {
			continue
		}
		out = append(out, associatedFilesResponse{
			NodeID:          msg.NodeID,
			Timestamp:       timeutil.Format(msg.Timestamp),
			AssociatedFiles: files,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNodeDefinitions(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w)
	if !ok {
		return
	}
	ids, err := store.RegisteredNodeIDs()
	if err != nil {
		s.failQuery(w, err)
		return
	}
	out := []nodeDefinitionResponse{}
	for _, id := range ids {
		msg, found, err := store.LatestRegistration(id)
		if err != nil {
			s.failQuery(w, err)
			return
		}
		if !found {
			continue
		}
		defs, _ := msg.Message["node_definition"].([]any)
		out = append(out, nodeDefinitionResponse{
			NodeID:         msg.NodeID,
			Timestamp:      timeutil.Format(msg.Timestamp),
			NodeDefinition: defs,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
