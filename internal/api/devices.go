package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/conduit-core/internal/device"
)

// Node is the JSON shape of one device in the tree.
type Node struct {
	Name     string `json:"name"`
	Child    string `json:"child,omitempty"` // registration name within the parent
	State    string `json:"state"`
	Children []Node `json:"children,omitempty"`
}

// buildNode renders d and its subtree.
func buildNode(childName string, d device.Device) Node {
	n := Node{
		Name:  d.Name(),
		Child: childName,
		State: string(device.StateOf(d)),
	}
	for _, c := range d.Children() {
		n.Children = append(n.Children, buildNode(c.Name, c.Device))
	}
	return n
}

// handleTree returns every registered device subtree with connect states.
func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	devices := s.group.Devices()
	nodes := make([]Node, 0, len(devices))
	for _, c := range devices {
		nodes = append(nodes, buildNode(c.Name, c.Device))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": nodes,
	})
}

// handleGetDevice returns one registered device subtree.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.group.Device(name)
	if !ok {
		writeNotFound(w, "unknown device: "+name)
		return
	}
	writeJSON(w, http.StatusOK, buildNode(name, d))
}

// handleDeviceConnect triggers a connect of one device subtree.
// ?force=true discards any cached attempt.
func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.group.Device(name)
	if !ok {
		writeNotFound(w, "unknown device: "+name)
		return
	}

	force, err := parseForce(r)
	if err != nil {
		writeBadRequest(w, "force must be a boolean")
		return
	}

	// Detach from the request context: an operator closing the tab must
	// not cancel a reconnect already in flight across the subtree.
	connectErr := d.Connect(context.Background(), device.ConnectRequest{
		Mock:     s.mock,
		Registry: s.registry,
		Timeout:  s.connectTimeout,
		Force:    force,
	})

	s.writeConnectResult(w, buildNode(name, d), connectErr)
}

// handleTreeConnect triggers a group-wide connect of every device.
func (s *Server) handleTreeConnect(w http.ResponseWriter, r *http.Request) {
	err := s.group.Connect(context.Background())
	if errors.Is(err, device.ErrConnectInProgress) {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}

	devices := s.group.Devices()
	nodes := make([]Node, 0, len(devices))
	for _, c := range devices {
		nodes = append(nodes, buildNode(c.Name, c.Device))
	}
	s.writeConnectResult(w, nodes, err)
}

// writeConnectResult renders a connect outcome: 200 with the refreshed
// tree on success, 502 with the aggregate failure otherwise.
func (s *Server) writeConnectResult(w http.ResponseWriter, tree any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"result":  "connected",
			"devices": tree,
		})
		return
	}

	writeJSON(w, http.StatusBadGateway, map[string]any{
		"result":  "failed",
		"error":   err.Error(),
		"devices": tree,
	})
}

// handleHistory returns recent journalled connect attempts.
// Query: ?device=<name>&limit=<n>
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "connect journal is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), r.URL.Query().Get("device"), limit)
	if err != nil {
		s.logger.Error("querying connect journal", "error", err)
		writeInternalError(w, "querying connect journal failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

func parseForce(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("force")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
