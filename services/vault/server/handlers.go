package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"floorbank/core/types"
	"floorbank/native/vault"
	"floorbank/services/vault/audit"
)

const (
	maxBucketSpanDays = 366
	// maxBucketTimestamp is the start of year 10000 UTC.
	maxBucketTimestamp = 253402300800
)

type opRequest struct {
	Amount   string `json:"amount"`
	Days     uint64 `json:"days"`
	Receiver string `json:"receiver"`
	To       string `json:"to"`
}

func callerOf(r *http.Request) common.Address {
	principal, _ := PrincipalFromContext(r.Context())
	if principal == nil {
		return common.Address{}
	}
	return principal.Account
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	var snap *vault.Snapshot
	err := s.read(func() (err error) {
		snap, err = s.engine.Snapshot()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := newProtocolView(snap)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protocol": view,
		"paused":   s.pauses.IsPaused(moduleName),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var price *uint256.Int
	err := s.read(func() (err error) {
		price, err = s.engine.Price()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": amountString(price)})
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var view *vault.LoanView
	if err := s.read(func() (err error) {
		view, err = s.engine.Loan(account)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(view))
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	from, err := parseUint("from", r.URL.Query().Get("from"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseUint("to", r.URL.Query().Get("to"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if to < from || (to-from)/uint64(24*time.Hour/time.Second) > maxBucketSpanDays {
		s.fail(w, r, fmt.Errorf("%w: range must be ordered and span at most %d days", errBadRequest, maxBucketSpanDays))
		return
	}
	if to >= maxBucketTimestamp {
		s.fail(w, r, fmt.Errorf("%w: to is beyond the bucket horizon", errBadRequest))
		return
	}
	var buckets []vault.DayBucket
	if err := s.read(func() (err error) {
		buckets, err = s.engine.Buckets(from, to)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]bucketView, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketView{Day: b.Day, Collateral: amountString(b.Bucket.Collateral), Borrowed: amountString(b.Bucket.Borrowed)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": out})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var acc *types.Account
	if err := s.read(func() (err error) {
		acc, err = s.engine.Balance(account)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceView(account.Hex(), acc))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := parseAmount("amount", query.Get("amount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var days uint64
	if raw := query.Get("days"); raw != "" {
		if days, err = parseUint("days", raw); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	caller := callerOf(r)
	var payload interface{}
	err = s.read(func() error {
		switch strings.ToLower(chi.URLParam(r, "kind")) {
		case "buy":
			q, err := s.engine.QuoteBuy(amount)
			if err != nil {
				return err
			}
			payload = map[string]string{"receipts": amountString(q.Receipts), "treasuryFee": amountString(q.TreasuryFee)}
		case "sell":
			q, err := s.engine.QuoteSell(amount)
			if err != nil {
				return err
			}
			payload = map[string]string{"gross": amountString(q.Gross), "reserve": amountString(q.Reserve), "treasuryFee": amountString(q.TreasuryFee)}
		case "borrow":
			q, err := s.engine.QuoteBorrow(caller, amount, days)
			if err != nil {
				return err
			}
			payload = borrowQuoteView(q)
		case "leverage":
			q, err := s.engine.QuoteLeverage(caller, amount, days)
			if err != nil {
				return err
			}
			payload = leverageQuoteView(q)
		default:
			return fmt.Errorf("%w: unknown quote kind", errBadRequest)
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	query := audit.Query{Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := parseUint("limit", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		query.Limit = int(limit)
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: since must be RFC3339", errBadRequest))
			return
		}
		query.Since = since
	}
	records, err := s.audit.List(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Decoded()
		if err != nil {
			attrs = map[string]string{}
		}
		out = append(out, map[string]interface{}{
			"id":         rec.ID.String(),
			"seq":        rec.Seq,
			"type":       rec.Type,
			"attributes": attrs,
			"digest":     rec.Digest,
			"createdAt":  rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) handleEventsExport(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	query := audit.Query{Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: since must be RFC3339", errBadRequest))
			return
		}
		query.Since = since
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="vault-events.parquet"`)
	if _, err := s.audit.ExportParquet(r.Context(), w, query); err != nil {
		s.logger.Error("vaultd: audit export failed", slog.Any("error", err))
	}
}

func (s *Server) handleEventsVerify(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	checked, err := s.audit.Verify(r.Context())
	if errors.Is(err, audit.ErrChainBroken) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"verified": checked, "error": err.Error()})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verified": checked})
}

// amountOp decodes {"amount"} and runs op for the authenticated caller.
func (s *Server) amountOp(w http.ResponseWriter, r *http.Request, name string, op func(caller common.Address, amount *uint256.Int) (interface{}, error)) {
	var req opRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var result interface{}
	if err := s.mutate(r.Context(), name, func() (err error) {
		result, err = op(callerOf(r), amount)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller := callerOf(r)
	receiver := caller
	if strings.TrimSpace(req.Receiver) != "" {
		if receiver, err = parseAddress("receiver", req.Receiver); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	var received *uint256.Int
	if err := s.mutate(r.Context(), "buy", func() (err error) {
		received, err = s.engine.Buy(caller, receiver, amount)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receipts": amountString(received), "receiver": receiver.Hex()})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "sell", func(caller common.Address, amount *uint256.Int) (interface{}, error) {
		out, err := s.engine.Sell(caller, amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"reserve": amountString(out)}, nil
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.mutate(r.Context(), "transfer", func() error {
		return s.engine.TransferReceipt(callerOf(r), to, amount)
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"to": to.Hex(), "amount": amountString(amount)})
}

// loanOp decodes {"amount","days"} for the day-bearing loan operations.
func (s *Server) loanOp(w http.ResponseWriter, r *http.Request, name string, op func(caller common.Address, amount *uint256.Int, days uint64) (interface{}, error)) {
	var req opRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var result interface{}
	if err := s.mutate(r.Context(), name, func() (err error) {
		result, err = op(callerOf(r), amount, req.Days)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	s.loanOp(w, r, "borrow", func(caller common.Address, amount *uint256.Int, days uint64) (interface{}, error) {
		q, err := s.engine.Borrow(caller, amount, days)
		if err != nil {
			return nil, err
		}
		return borrowQuoteView(q), nil
	})
}

func (s *Server) handleLeverage(w http.ResponseWriter, r *http.Request) {
	s.loanOp(w, r, "leverage", func(caller common.Address, amount *uint256.Int, days uint64) (interface{}, error) {
		q, err := s.engine.Leverage(caller, amount, days)
		if err != nil {
			return nil, err
		}
		return leverageQuoteView(q), nil
	})
}

func (s *Server) handleBorrowMore(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "borrowMore", func(caller common.Address, amount *uint256.Int) (interface{}, error) {
		q, err := s.engine.BorrowMore(caller, amount)
		if err != nil {
			return nil, err
		}
		return borrowQuoteView(q), nil
	})
}

func (s *Server) handleRemoveCollateral(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "removeCollateral", func(caller common.Address, amount *uint256.Int) (interface{}, error) {
		if err := s.engine.RemoveCollateral(caller, amount); err != nil {
			return nil, err
		}
		return map[string]string{"removed": amountString(amount)}, nil
	})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "repay", func(caller common.Address, amount *uint256.Int) (interface{}, error) {
		if err := s.engine.Repay(caller, amount); err != nil {
			return nil, err
		}
		return map[string]string{"repaid": amountString(amount)}, nil
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.mutate(r.Context(), "closePosition", func() error {
		return s.engine.ClosePosition(callerOf(r))
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (s *Server) handleFlashClose(w http.ResponseWriter, r *http.Request) {
	var surplus *uint256.Int
	if err := s.mutate(r.Context(), "flashClosePosition", func() (err error) {
		surplus, err = s.engine.FlashClosePosition(callerOf(r))
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"surplus": amountString(surplus)})
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var fee *uint256.Int
	if err := s.mutate(r.Context(), "extendLoan", func() (err error) {
		fee, err = s.engine.ExtendLoan(callerOf(r), req.Days)
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"fee": amountString(fee)})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var retired *uint256.Int
	if err := s.mutate(r.Context(), "sweep", func() (err error) {
		retired, err = s.engine.Sweep()
		return err
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"retiredDebt": amountString(retired)})
}
