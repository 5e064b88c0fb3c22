package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/switchbridge/internal/accessory"
)

// accessoryResponse describes one accessory as the framework sees it.
type accessoryResponse struct {
	Name            string                            `json:"name"`
	Manufacturer    string                            `json:"manufacturer"`
	Model           string                            `json:"model"`
	SerialNumber    string                            `json:"serialNumber"`
	SwitchType      string                            `json:"switchType"`
	Characteristics []accessory.Characteristic        `json:"characteristics"`
	Connected       bool                              `json:"connected"`
	Values          map[accessory.Characteristic]bool `json:"values,omitempty"`
}

// valueResponse is the body of characteristic reads and writes.
type valueResponse struct {
	Value     bool   `json:"value"`
	Published *bool  `json:"published,omitempty"`
	Error     string `json:"error,omitempty"`
}

// setValueRequest is the body of PUT /accessories/{name}/on.
type setValueRequest struct {
	Value *bool `json:"value"`
}

func describeAccessory(a *accessory.Accessory, withValues bool) accessoryResponse {
	p := a.Profile()
	resp := accessoryResponse{
		Name:            p.Name,
		Manufacturer:    p.Manufacturer,
		Model:           p.Model,
		SerialNumber:    p.SerialNumberMAC,
		SwitchType:      string(p.SwitchType),
		Characteristics: a.Characteristics(),
		Connected:       a.IsConnected(),
	}
	if withValues {
		resp.Values = a.Values()
	}
	return resp
}

// handleListAccessories returns every registered accessory.
func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	list := s.registry.List()
	accessories := make([]accessoryResponse, 0, len(list))
	for _, a := range list {
		accessories = append(accessories, describeAccessory(a, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessories": accessories, "count": len(accessories)})
}

func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeAccessory(a, true))
}

func (s *Server) handleGetOn(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Value: a.On()})
}

// handleSetOn is the user-originated set path. The value is always recorded;
// a publish that cannot reach the broker answers 202 with published=false.
func (s *Server) handleSetOn(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}

	var req setValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	on := *req.Value
	if err := a.SetOn(on); err != nil {
		s.logger.Warn("power command not published",
			"accessory", a.Name(),
			"value", on,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		published := false
		writeJSON(w, http.StatusAccepted, valueResponse{Value: on, Published: &published, Error: err.Error()})
		return
	}

	published := true
	writeJSON(w, http.StatusOK, valueResponse{Value: on, Published: &published})
}

func (s *Server) handleGetOutletInUse(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	inUse, err := a.OutletInUse()
	if errors.Is(err, accessory.ErrUnsupported) {
		writeNotFound(w, "accessory is not an outlet")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Value: inUse})
}

func (s *Server) handleGetStatusActive(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	active, err := a.StatusActive()
	if errors.Is(err, accessory.ErrUnsupported) {
		writeNotFound(w, "accessory has no activity topic")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Value: active})
}

// lookupAccessory resolves the {name} URL parameter, writing a 404 when
// the accessory does not exist.
func (s *Server) lookupAccessory(w http.ResponseWriter, r *http.Request) (*accessory.Accessory, bool) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	a, err := s.registry.Get(name)
	if err != nil {
		writeNotFound(w, "accessory not found")
		return nil, false
	}
	return a, true
}
