package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// Start bootstraps trading. The owner deposits reserve and receives receipts
// one for one, which fixes the opening price at 1e18.
func (e *Engine) Start(caller common.Address, reserveIn *uint256.Int) error {
	return e.execute("start", func(s *session) (*uint256.Int, error) {
		if caller != s.p.Owner {
			return nil, ErrUnauthorized
		}
		if s.p.Started {
			return nil, ErrAlreadyStarted
		}
		if s.p.Treasury == (common.Address{}) {
			return nil, ErrTreasuryNotSet
		}
		if err := requirePositive(reserveIn); err != nil {
			return nil, err
		}
		if err := s.transferReserve(caller, s.custody(), reserveIn); err != nil {
			return nil, err
		}
		if err := s.mintReceipt(caller, reserveIn); err != nil {
			return nil, err
		}
		s.p.Started = true
		s.emit(events.VaultStarted{Owner: caller, Reserve: cloneAmount(reserveIn), Receipts: cloneAmount(reserveIn)})
		return reserveIn, nil
	})
}

// Buy deposits reserveIn from caller and mints the fee-adjusted receipt
// equivalent to receiver. The caller holding the master minter identity
// raises the mint cap instead of being rejected by it.
func (e *Engine) Buy(caller, receiver common.Address, reserveIn *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := e.execute("buy", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if receiver == (common.Address{}) {
			return nil, fmt.Errorf("%w: receiver", ErrZeroAddress)
		}
		if err := requirePositive(reserveIn); err != nil {
			return nil, err
		}
		quote, err := s.quoteBuy(reserveIn)
		if err != nil {
			return nil, err
		}
		if quote.Receipts.IsZero() {
			return nil, fmt.Errorf("%w: deposit too small to mint receipts", ErrInvalidAmount)
		}
		if caller == s.p.MasterMinter && caller != (common.Address{}) {
			if err := s.raiseCapFor(quote.Receipts); err != nil {
				return nil, err
			}
		}
		if err := s.transferReserve(caller, s.custody(), reserveIn); err != nil {
			return nil, err
		}
		if err := s.mintReceipt(receiver, quote.Receipts); err != nil {
			return nil, err
		}
		if err := s.payTreasury(quote.TreasuryFee); err != nil {
			return nil, err
		}
		minted = quote.Receipts
		s.emit(events.VaultTrade{
			Buy:         true,
			Caller:      caller,
			Receiver:    receiver,
			ReserveIn:   cloneAmount(reserveIn),
			ReceiptOut:  cloneAmount(minted),
			TreasuryFee: quote.TreasuryFee,
		})
		return reserveIn, nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Sell burns receiptIn from caller and pays out the fee-adjusted reserve
// equivalent.
func (e *Engine) Sell(caller common.Address, receiptIn *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	err := e.execute("sell", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if err := requirePositive(receiptIn); err != nil {
			return nil, err
		}
		quote, err := s.quoteSell(receiptIn)
		if err != nil {
			return nil, err
		}
		if err := s.burnReceipt(caller, receiptIn); err != nil {
			return nil, err
		}
		if err := s.transferReserve(s.custody(), caller, quote.Reserve); err != nil {
			return nil, err
		}
		if err := s.payTreasury(quote.TreasuryFee); err != nil {
			return nil, err
		}
		paid = quote.Reserve
		s.emit(events.VaultTrade{
			Caller:      caller,
			ReceiptIn:   cloneAmount(receiptIn),
			ReserveOut:  cloneAmount(paid),
			TreasuryFee: quote.TreasuryFee,
		})
		return quote.Gross, nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// TransferReceipt moves receipts between two holders. Collateral held in
// custody can only move through the loan operations, so custody is rejected
// as either side.
func (e *Engine) TransferReceipt(from, to common.Address, amount *uint256.Int) error {
	return e.execute("transfer", func(s *session) (*uint256.Int, error) {
		if to == (common.Address{}) {
			return nil, fmt.Errorf("%w: recipient", ErrZeroAddress)
		}
		if from == s.custody() || to == s.custody() {
			return nil, ErrUnauthorized
		}
		if err := requirePositive(amount); err != nil {
			return nil, err
		}
		if err := s.transferReceipt(from, to, amount); err != nil {
			return nil, err
		}
		s.emit(events.Transfer{Asset: ReceiptSymbol, From: from, To: to, Amount: cloneAmount(amount)})
		return new(uint256.Int), nil
	})
}

// raiseCapFor lifts the mint cap so that minting amount fits.
func (s *session) raiseCapFor(amount *uint256.Int) error {
	needed, err := addAmount(s.p.TotalMinted, amount)
	if err != nil {
		return err
	}
	if !needed.Gt(s.p.MintCap) {
		return nil
	}
	s.p.MintCap = needed
	s.emit(events.ParamsUpdated{Field: "mintCap", Value: needed.Dec()})
	return nil
}
