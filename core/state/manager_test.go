package state

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"floorbank/core/types"
	"floorbank/native/vault"
	"floorbank/storage"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	trsy    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestTxReadsOwnWritesAndDiscards(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	tx, err := m.BeginTx()
	require.NoError(t, err)

	acc := types.NewAccount()
	acc.Reserve.SetUint64(42)
	require.NoError(t, tx.PutAccount(alice, acc))

	got, err := tx.GetAccount(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.Reserve.Uint64())
	tx.Discard()

	committed, err := m.Account(alice)
	require.NoError(t, err)
	require.True(t, committed.Reserve.IsZero())

	_, err = tx.GetAccount(alice)
	require.ErrorIs(t, err, errTxClosed)
}

func TestTxCommitPersistsRecords(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	err := m.Update(func(tx *Tx) error {
		p := &vault.Protocol{Owner: owner, Started: true, MintCap: uint256.NewInt(100), SweepCursor: 86_400}
		if err := tx.PutProtocol(p); err != nil {
			return err
		}
		loan := &vault.Loan{Collateral: uint256.NewInt(10), Borrowed: uint256.NewInt(9), Maturity: 172_800, TenureDays: 2}
		if err := tx.PutLoan(alice, loan); err != nil {
			return err
		}
		if err := tx.PutBucket(172_800, &vault.Bucket{Collateral: uint256.NewInt(10), Borrowed: uint256.NewInt(9)}); err != nil {
			return err
		}
		return tx.PutReceiptSupply(uint256.NewInt(77))
	})
	require.NoError(t, err)

	require.NoError(t, m.View(func(tx *Tx) error {
		p, err := tx.GetProtocol()
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Equal(t, owner, p.Owner)
		require.True(t, p.Started)
		require.Equal(t, uint64(100), p.MintCap.Uint64())
		require.True(t, p.TotalBorrowed.IsZero())

		loan, err := tx.GetLoan(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(9), loan.Borrowed.Uint64())
		require.Equal(t, uint64(172_800), loan.Maturity)

		bucket, err := tx.GetBucket(172_800)
		require.NoError(t, err)
		require.Equal(t, uint64(10), bucket.Collateral.Uint64())

		empty, err := tx.GetBucket(259_200)
		require.NoError(t, err)
		require.True(t, empty.Borrowed.IsZero())

		supply, err := tx.ReceiptSupply()
		require.NoError(t, err)
		require.Equal(t, uint64(77), supply.Uint64())
		return nil
	}))
}

func TestTxDeleteLoan(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.Update(func(tx *Tx) error {
		return tx.PutLoan(alice, &vault.Loan{Collateral: uint256.NewInt(1), Borrowed: uint256.NewInt(1)})
	}))
	require.NoError(t, m.Update(func(tx *Tx) error {
		if err := tx.DeleteLoan(alice); err != nil {
			return err
		}
		loan, err := tx.GetLoan(alice)
		require.NoError(t, err)
		require.Nil(t, loan)
		return nil
	}))
	require.NoError(t, m.View(func(tx *Tx) error {
		loan, err := tx.GetLoan(alice)
		require.NoError(t, err)
		require.Nil(t, loan)
		protocol, err := tx.GetProtocol()
		require.NoError(t, err)
		require.Nil(t, protocol)
		return nil
	}))
}

func TestCreditAccumulates(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.Credit(alice, uint256.NewInt(5)))
	require.NoError(t, m.Credit(alice, uint256.NewInt(7)))
	require.NoError(t, m.Credit(alice, nil))
	acc, err := m.Account(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(12), acc.Reserve.Uint64())
	require.True(t, acc.Receipt.IsZero())
}

func TestTokenSupplyKeyNormalised(t *testing.T) {
	require.Equal(t, tokenSupplyKey("rcpt"), tokenSupplyKey(" RCPT "))
	require.NotEqual(t, loanKey(alice), accountKey(alice))
	require.NotEqual(t, bucketKey(1), bucketKey(2))
}

func TestEngineOverPersistentState(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	now := time.Unix(1_700_000_000, 0)

	engine := vault.NewEngine(m, custody, rateOf(1_000))
	engine.SetClock(func() time.Time { return now })

	params := vault.DefaultParams()
	params.Owner = owner
	params.Treasury = trsy
	require.NoError(t, engine.Initialize(params))

	require.NoError(t, m.Credit(owner, units(1_000)))
	require.NoError(t, m.Credit(alice, units(500)))
	require.NoError(t, engine.Start(owner, units(1_000)))

	received, err := engine.Buy(alice, alice, units(100))
	require.NoError(t, err)
	require.False(t, received.IsZero())

	quote, err := engine.Borrow(alice, units(50), 30)
	require.NoError(t, err)
	require.False(t, quote.Payout.IsZero())

	// A second engine over the same database observes the committed book.
	reopened := vault.NewEngine(NewManager(db), custody, rateOf(1_000))
	reopened.SetClock(func() time.Time { return now })
	view, err := reopened.Loan(alice)
	require.NoError(t, err)
	require.True(t, view.Active)
	require.Equal(t, quote.Borrowed, view.Loan.Borrowed)

	supply, err := m.TokenSupply(vault.ReceiptSymbol)
	require.NoError(t, err)
	require.True(t, supply.Gt(units(1_000)))

	// Failed operations leave the store untouched.
	before := len(db.Keys())
	_, err = engine.Borrow(alice, units(10), 30)
	require.ErrorIs(t, err, vault.ErrLoanActive)
	require.Len(t, db.Keys(), before)
}

type rateOf uint64

func (r rateOf) RateBPS(common.Address) (uint64, error) { return uint64(r), nil }

func TestTransferReserve(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.Credit(alice, uint256.NewInt(10)))
	require.ErrorIs(t, m.TransferReserve(alice, owner, uint256.NewInt(11)), ErrInsufficientReserve)
	require.NoError(t, m.TransferReserve(alice, owner, uint256.NewInt(4)))

	src, err := m.Account(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(6), src.Reserve.Uint64())
	dst, err := m.Account(owner)
	require.NoError(t, err)
	require.Equal(t, uint64(4), dst.Reserve.Uint64())
}
