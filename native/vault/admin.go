package vault

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// admin runs an owner-gated parameter change through the regular mutation
// pipeline so it sweeps, guards and commits like every other operation.
func (e *Engine) admin(caller common.Address, field string, fn func(p *Protocol) (string, error)) error {
	return e.execute("admin."+field, func(s *session) (*uint256.Int, error) {
		if caller != s.p.Owner {
			return nil, ErrUnauthorized
		}
		value, err := fn(s.p)
		if err != nil {
			return nil, err
		}
		s.emit(events.ParamsUpdated{Field: field, Value: value})
		return new(uint256.Int), nil
	})
}

func setFee(target *uint64, bps uint64, bounds FeeBounds, name string) (string, error) {
	if !bounds.contains(bps) {
		return "", fmt.Errorf("%w: %s %d not in [%d, %d]", ErrFeeOutOfBounds, name, bps, bounds.Min, bounds.Max)
	}
	*target = bps
	return strconv.FormatUint(bps, 10), nil
}

func (e *Engine) SetBuyFee(caller common.Address, bps uint64) error {
	return e.admin(caller, "buyFeeBps", func(p *Protocol) (string, error) {
		return setFee(&p.BuyFeeBps, bps, TradeFeeBounds, "buy fee")
	})
}

func (e *Engine) SetSellFee(caller common.Address, bps uint64) error {
	return e.admin(caller, "sellFeeBps", func(p *Protocol) (string, error) {
		return setFee(&p.SellFeeBps, bps, TradeFeeBounds, "sell fee")
	})
}

func (e *Engine) SetLeverageFee(caller common.Address, bps uint64) error {
	return e.admin(caller, "leverageFeeBps", func(p *Protocol) (string, error) {
		return setFee(&p.LeverageFeeBps, bps, LeverageFeeBounds, "leverage fee")
	})
}

func (e *Engine) SetFlashCloseFee(caller common.Address, bps uint64) error {
	return e.admin(caller, "flashCloseFeeBps", func(p *Protocol) (string, error) {
		return setFee(&p.FlashCloseFeeBps, bps, FlashCloseFeeBounds, "flash close fee")
	})
}

// SetTreasury changes the recipient of the protocol fee share.
func (e *Engine) SetTreasury(caller, treasury common.Address) error {
	return e.admin(caller, "treasury", func(p *Protocol) (string, error) {
		if treasury == (common.Address{}) {
			return "", fmt.Errorf("%w: treasury", ErrZeroAddress)
		}
		p.Treasury = treasury
		return treasury.Hex(), nil
	})
}

// SetMasterMinter changes the identity allowed to buy past the mint cap. The
// zero address disables the bypass.
func (e *Engine) SetMasterMinter(caller, minter common.Address) error {
	return e.admin(caller, "masterMinter", func(p *Protocol) (string, error) {
		p.MasterMinter = minter
		return minter.Hex(), nil
	})
}

// RaiseMintCap sets a new mint cap, which must exceed the current one.
func (e *Engine) RaiseMintCap(caller common.Address, limit *uint256.Int) error {
	return e.admin(caller, "mintCap", func(p *Protocol) (string, error) {
		if limit == nil || !limit.Gt(p.MintCap) {
			return "", ErrMintCapDecrease
		}
		p.MintCap = new(uint256.Int).Set(limit)
		return limit.Dec(), nil
	})
}

// TransferOwnership hands the administrative surface to owner.
func (e *Engine) TransferOwnership(caller, owner common.Address) error {
	return e.admin(caller, "owner", func(p *Protocol) (string, error) {
		if owner == (common.Address{}) {
			return "", fmt.Errorf("%w: owner", ErrZeroAddress)
		}
		p.Owner = owner
		return owner.Hex(), nil
	})
}
