package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/gorilla/mux"
)

// InitRequest is the body of POST /api/init.
type InitRequest struct {
	Admin string `json:"admin"`
	Token string `json:"token"`
}

// PackageRequest is the body of PUT /api/packages/{id}.
type PackageRequest struct {
	Price        uint64 `json:"price"`
	DurationSecs uint64 `json:"duration_secs"`
}

// PurchaseRequest is the body of POST /api/owners/{owner}/orders.
type PurchaseRequest struct {
	PackageID uint32 `json:"package_id"`
}

// SessionResponse reports a session and what the last call did to it.
type SessionResponse struct {
	Session    storage.Session `json:"session"`
	Transition string          `json:"transition,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Admin == "" || req.Token == "" {
		WriteError(w, http.StatusBadRequest, "admin and token are required")
		return
	}

	if err := s.svc.Init(r.Context(), req.Admin, req.Token); err != nil {
		s.fail(w, err, "init")
		return
	}
	WriteJSON(w, http.StatusCreated, req)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Settings(r.Context())
	if err != nil {
		s.fail(w, err, "settings")
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.svc.ListPackages(r.Context())
	if err != nil {
		s.fail(w, err, "list packages")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"packages": packages,
		"count":    len(packages),
	})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePackageID(w, r)
	if !ok {
		return
	}

	pkg, err := s.svc.GetPackage(r.Context(), id)
	if err != nil {
		s.fail(w, err, "get package")
		return
	}
	WriteJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleSetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePackageID(w, r)
	if !ok {
		return
	}
	var req PackageRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.svc.SetPackage(r.Context(), id, req.Price, req.DurationSecs); err != nil {
		s.fail(w, err, "set package")
		return
	}
	WriteJSON(w, http.StatusOK, storage.Package{ID: id, Price: req.Price, DurationSecs: req.DurationSecs})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	orders, err := s.svc.ListOrders(r.Context(), owner)
	if err != nil {
		s.fail(w, err, "list orders")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	var req PurchaseRequest
	if !decode(w, r, &req) {
		return
	}

	orderID, err := s.svc.Purchase(r.Context(), owner, req.PackageID)
	if err != nil {
		s.fail(w, err, "purchase")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"owner":      owner,
		"order_id":   orderID,
		"package_id": req.PackageID,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := s.svc.GetOrder(r.Context(), owner, orderID)
	if err != nil {
		s.fail(w, err, "get order")
		return
	}
	WriteJSON(w, http.StatusOK, order)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	remaining, err := s.svc.Grant(r.Context(), caller, owner, orderID)
	if err != nil {
		s.fail(w, err, "grant")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"owner":          owner,
		"order_id":       orderID,
		"remaining_secs": remaining,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Session(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.fail(w, err, "get session")
		return
	}
	WriteJSON(w, http.StatusOK, SessionResponse{Session: session})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	session, transition, err := s.svc.Start(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.fail(w, err, "start")
		return
	}
	WriteJSON(w, http.StatusOK, SessionResponse{Session: session, Transition: transition.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	session, transition, err := s.svc.Pause(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.fail(w, err, "pause")
		return
	}
	WriteJSON(w, http.StatusOK, SessionResponse{Session: session, Transition: transition.String()})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	access, err := s.svc.Access(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.fail(w, err, "access")
		return
	}
	WriteJSON(w, http.StatusOK, access)
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	now, ok := s.queryNow(w, r)
	if !ok {
		return
	}

	remaining, err := s.svc.Remaining(r.Context(), owner, now)
	if err != nil {
		s.fail(w, err, "remaining")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"owner":          owner,
		"now":            now,
		"remaining_secs": remaining,
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	now, ok := s.queryNow(w, r)
	if !ok {
		return
	}

	active, err := s.svc.IsActive(r.Context(), owner, now)
	if err != nil {
		s.fail(w, err, "active")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"owner":  owner,
		"now":    now,
		"active": active,
	})
}

func (s *Server) fail(w http.ResponseWriter, err error, op string) {
	if writeServiceError(w, err) {
		s.logger.Error().Err(err).Str("operation", op).Msg("Request failed")
	}
}

// queryNow reads ?now=, defaulting to the service clock.
func (s *Server) queryNow(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.URL.Query().Get("now")
	if raw == "" {
		return s.svc.Now(), true
	}
	now, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "now must be an unsigned integer")
		return 0, false
	}
	return now, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func parsePackageID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid package id")
		return 0, false
	}
	return uint32(id), true
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["order"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return id, true
}
