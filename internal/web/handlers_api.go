package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
)

const deviceTimeout = 10 * time.Second

type accessoryInfoView struct {
	Manufacturer     any `json:"manufacturer"`
	Model            any `json:"model"`
	SerialNumber     any `json:"serial_number"`
	FirmwareRevision any `json:"firmware_revision"`
	HardwareRevision any `json:"hardware_revision"`
}

type characteristicView struct {
	Type        string     `json:"type"`
	IID         uint16     `json:"iid"`
	Format      hap.Format `json:"format"`
	Unit        string     `json:"unit,omitempty"`
	Description string     `json:"description,omitempty"`
	Readable    bool       `json:"readable"`
	Writable    bool       `json:"writable"`
	Notifies    bool       `json:"notifies"`
	Value       any        `json:"value"`
}

type serviceView struct {
	Type            string               `json:"type"`
	IID             uint16               `json:"iid"`
	Characteristics []characteristicView `json:"characteristics"`
}

type accessoryView struct {
	Name         string            `json:"name"`
	Address      string            `json:"address,omitempty"`
	Peripheral   string            `json:"peripheral,omitempty"`
	Paired       bool              `json:"paired"`
	Started      bool              `json:"started"`
	Reachability string            `json:"reachability"`
	Reachable    bool              `json:"reachable"`
	LinkQuality  int               `json:"link_quality"`
	Info         accessoryInfoView `json:"info"`
	Services     []serviceView     `json:"services,omitempty"`
}

func viewAccessory(acc *bridge.Accessory, detail bool) accessoryView {
	info := acc.Info()
	v := accessoryView{
		Name:         acc.Name(),
		Address:      acc.Config().Address,
		Started:      acc.Started(),
		Reachability: acc.Reachability().String(),
		Reachable:    acc.Reachability() == bridge.Reachable,
		LinkQuality:  acc.LinkQuality(),
		Info: accessoryInfoView{
			Manufacturer:     info.Manufacturer.Value(),
			Model:            info.Model.Value(),
			SerialNumber:     info.SerialNumber.Value(),
			FirmwareRevision: info.FirmwareRevision.Value(),
			HardwareRevision: info.HardwareRevision.Value(),
		},
	}
	if p := acc.Peripheral(); p != nil {
		v.Peripheral = p.ID()
		v.Paired = p.IsPaired()
	}
	if !detail {
		return v
	}

	for _, svc := range acc.Proxies() {
		meta := svc.Metadata()
		sv := serviceView{Type: hap.ShortName(meta.UUID), IID: meta.IID}
		for _, c := range svc.Proxies() {
			m := c.Metadata()
			sv.Characteristics = append(sv.Characteristics, characteristicView{
				Type:        hap.ShortName(m.Address.Characteristic),
				IID:         m.IID,
				Format:      m.Format,
				Unit:        m.Unit,
				Description: m.Description,
				Readable:    m.Readable(),
				Writable:    m.Writable(),
				Notifies:    m.Notifies(),
				Value:       c.Value(),
			})
		}
		v.Services = append(v.Services, sv)
	}
	return v
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIListAccessories(w http.ResponseWriter, r *http.Request) {
	views := make([]accessoryView, 0, len(s.br.Accessories()))
	for _, acc := range s.br.Accessories() {
		views = append(views, viewAccessory(acc, false))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// accessory resolves the {name} path value or writes a 404.
func (s *Server) accessory(w http.ResponseWriter, r *http.Request) (*bridge.Accessory, bool) {
	acc, ok := s.br.Accessory(r.PathValue("name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "accessory not found")
	}
	return acc, ok
}

func (s *Server) handleAPIGetAccessory(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accessory(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, viewAccessory(acc, true))
}

func (s *Server) handleAPIIdentify(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accessory(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), deviceTimeout)
	defer cancel()

	errc := make(chan error, 1)
	acc.Identify(ctx, func(err error) { errc <- err })
	if err := <-errc; err != nil {
		s.writeDeviceError(w, acc, "identify", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// characteristic resolves the accessory and address path values.
func (s *Server) characteristic(w http.ResponseWriter, r *http.Request) (*bridge.Accessory, hap.Address, bool) {
	acc, ok := s.accessory(w, r)
	if !ok {
		return nil, hap.Address{}, false
	}
	addr, err := hap.ParseAddress(r.PathValue("service"), r.PathValue("characteristic"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, hap.Address{}, false
	}
	return acc, addr, true
}

type characteristicValue struct {
	Value any `json:"value"`
}

func (s *Server) handleAPIReadCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, addr, ok := s.characteristic(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), deviceTimeout)
	defer cancel()

	v, err := acc.ReadCharacteristic(ctx, addr)
	if err != nil {
		s.writeDeviceError(w, acc, "read characteristic", err)
		return
	}
	s.writeJSON(w, http.StatusOK, characteristicValue{Value: v})
}

func (s *Server) handleAPIWriteCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, addr, ok := s.characteristic(w, r)
	if !ok {
		return
	}

	var req characteristicValue
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deviceTimeout)
	defer cancel()
	if err := acc.WriteCharacteristic(ctx, addr, req.Value); err != nil {
		s.writeDeviceError(w, acc, "write characteristic", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// deviceErrorStatus maps accessory errors to HTTP statuses. Link and PDU
// status failures are 502.
func deviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrUnknownCharacteristic), errors.Is(err, bridge.ErrIdentifyUnavailable):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrNotStarted), errors.Is(err, bridge.ErrNoDatabase):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) writeDeviceError(w http.ResponseWriter, acc *bridge.Accessory, op string, err error) {
	status := deviceErrorStatus(err)
	if status >= http.StatusBadGateway {
		s.logger.Warn(op+" failed", "accessory", acc.Name(), "err", err)
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
