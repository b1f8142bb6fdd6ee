package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"floorbank/native/vault"
)

type adminRequest struct {
	Amount  string `json:"amount"`
	Bps     uint64 `json:"bps"`
	Address string `json:"address"`
	Paused  *bool  `json:"paused"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.mutate(r.Context(), "start", func() error {
		return s.engine.Start(callerOf(r), amount)
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var setter func(common.Address, uint64) error
	kind := strings.ToLower(chi.URLParam(r, "kind"))
	switch kind {
	case "buy":
		setter = s.engine.SetBuyFee
	case "sell":
		setter = s.engine.SetSellFee
	case "leverage":
		setter = s.engine.SetLeverageFee
	case "flash-close":
		setter = s.engine.SetFlashCloseFee
	default:
		s.fail(w, r, fmt.Errorf("%w: unknown fee %q", errBadRequest, kind))
		return
	}
	if err := s.mutate(r.Context(), "setFee", func() error {
		return setter(callerOf(r), req.Bps)
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fee": kind, "bps": req.Bps})
}

// addressAdmin runs an owner setter taking a single address.
func (s *Server) addressAdmin(w http.ResponseWriter, r *http.Request, name string, setter func(caller, target common.Address) error) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	target, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.mutate(r.Context(), name, func() error {
		return setter(callerOf(r), target)
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{name: target.Hex()})
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	s.addressAdmin(w, r, "treasury", s.engine.SetTreasury)
}

func (s *Server) handleSetMasterMinter(w http.ResponseWriter, r *http.Request) {
	s.addressAdmin(w, r, "masterMinter", s.engine.SetMasterMinter)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	s.addressAdmin(w, r, "owner", s.engine.TransferOwnership)
}

func (s *Server) handleRaiseMintCap(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.mutate(r.Context(), "raiseMintCap", func() error {
		return s.engine.RaiseMintCap(callerOf(r), limit)
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mintCap": amountString(limit)})
}

// handlePause toggles the module pause. Only the protocol owner may do so.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Paused == nil {
		s.fail(w, r, fmt.Errorf("%w: paused required", errBadRequest))
		return
	}
	if s.pauses == nil {
		writeError(w, http.StatusNotImplemented, "pause control disabled")
		return
	}
	err := s.mutate(r.Context(), "pause", func() error {
		protocol, err := s.engine.Protocol()
		if err != nil {
			return err
		}
		if protocol.Owner != callerOf(r) {
			return vault.ErrUnauthorized
		}
		s.pauses.Set(moduleName, *req.Paused)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": *req.Paused})
}
