package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (s *Server) presaleEnabled(w http.ResponseWriter) bool {
	if s.pool == nil {
		writeError(w, http.StatusNotFound, "presale disabled")
		return false
	}
	return true
}

func (s *Server) handlePresaleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.presaleEnabled(w) {
		return
	}
	caller := callerOf(r)
	var payload map[string]interface{}
	if err := s.read(func() error {
		contribution, err := s.pool.Contribution(caller)
		if err != nil {
			return err
		}
		claimable, err := s.pool.Claimable(caller)
		if err != nil {
			return err
		}
		payload = map[string]interface{}{
			"pool":         s.pool.Address().Hex(),
			"total":        amountString(s.pool.Total()),
			"finalized":    s.pool.Finalized(),
			"contribution": amountString(contribution),
			"claimable":    amountString(claimable),
		}
		return nil
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handlePresaleContribute(w http.ResponseWriter, r *http.Request) {
	if !s.presaleEnabled(w) {
		return
	}
	s.amountOp(w, r, "presaleContribute", func(caller common.Address, amount *uint256.Int) (interface{}, error) {
		if err := s.pool.Contribute(caller, amount, s.now()); err != nil {
			return nil, err
		}
		contribution, err := s.pool.Contribution(caller)
		if err != nil {
			return nil, err
		}
		return map[string]string{"contribution": amountString(contribution)}, nil
	})
}

func (s *Server) handlePresaleFinalize(w http.ResponseWriter, r *http.Request) {
	if !s.presaleEnabled(w) {
		return
	}
	var received *uint256.Int
	if err := s.mutate(r.Context(), "presaleFinalize", func() (err error) {
		received, err = s.pool.Finalize(s.now())
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receipts": amountString(received)})
}

func (s *Server) handlePresaleClaim(w http.ResponseWriter, r *http.Request) {
	if !s.presaleEnabled(w) {
		return
	}
	var share *uint256.Int
	if err := s.mutate(r.Context(), "presaleClaim", func() (err error) {
		share, err = s.pool.Claim(callerOf(r))
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receipts": amountString(share)})
}
