package presale_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"floorbank/core/state"
	"floorbank/native/presale"
	"floorbank/native/vault"
	"floorbank/storage"
)

var (
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	deadline = time.Unix(1_700_100_000, 0)
)

type flatRate uint64

func (r flatRate) RateBPS(common.Address) (uint64, error) { return uint64(r), nil }

func wei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestPoolConvertsThroughEngine(t *testing.T) {
	var (
		custody  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
		owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		treasury = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	)
	now := deadline.Add(-24 * time.Hour)
	manager := state.NewManager(storage.NewMemDB())
	engine := vault.NewEngine(manager, custody, flatRate(500))
	engine.SetClock(func() time.Time { return now })

	params := vault.DefaultParams()
	params.Owner = owner
	params.Treasury = treasury
	require.NoError(t, engine.Initialize(params))
	require.NoError(t, manager.Credit(owner, wei(1_000)))
	require.NoError(t, engine.Start(owner, wei(1_000)))

	require.NoError(t, manager.Credit(alice, wei(100)))
	require.NoError(t, manager.Credit(bob, wei(300)))

	pool, err := presale.NewPool(presale.Config{Address: poolAddr, Cap: wei(1_000), Deadline: deadline}, engine, manager)
	require.NoError(t, err)
	require.NoError(t, pool.Contribute(alice, wei(100), now))
	require.NoError(t, pool.Contribute(bob, wei(300), now))
	require.ErrorIs(t, pool.Contribute(alice, wei(1), now), state.ErrInsufficientReserve)

	now = deadline
	received, err := pool.Finalize(now)
	require.NoError(t, err)
	require.False(t, received.IsZero())

	aliceShare, err := pool.Claim(alice)
	require.NoError(t, err)
	bobShare, err := pool.Claim(bob)
	require.NoError(t, err)

	sum := new(uint256.Int).Add(aliceShare, bobShare)
	require.False(t, sum.Gt(received))
	require.False(t, new(uint256.Int).Mul(aliceShare, uint256.NewInt(3)).Gt(bobShare))

	balance, err := engine.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, aliceShare, balance.Receipt)
}

func TestPoolLedgerSurvivesReopen(t *testing.T) {
	var (
		custody  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
		owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		treasury = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	)
	now := deadline.Add(-time.Hour)
	db := storage.NewMemDB()
	manager := state.NewManager(db)
	engine := vault.NewEngine(manager, custody, flatRate(500))
	engine.SetClock(func() time.Time { return now })
	params := vault.DefaultParams()
	params.Owner = owner
	params.Treasury = treasury
	require.NoError(t, engine.Initialize(params))
	require.NoError(t, manager.Credit(owner, wei(1_000)))
	require.NoError(t, engine.Start(owner, wei(1_000)))
	require.NoError(t, manager.Credit(alice, wei(50)))

	cfg := presale.Config{Address: poolAddr, Cap: wei(1_000), Deadline: deadline}
	pool, err := presale.NewPool(cfg, engine, manager)
	require.NoError(t, err)
	require.NoError(t, pool.Contribute(alice, wei(50), now))

	reopened, err := presale.NewPool(cfg, engine, state.NewManager(db))
	require.NoError(t, err)
	require.Equal(t, wei(50), reopened.Total())
	contribution, err := reopened.Contribution(alice)
	require.NoError(t, err)
	require.Equal(t, wei(50), contribution)

	now = deadline
	received, err := reopened.Finalize(now)
	require.NoError(t, err)
	share, err := reopened.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, received, share)
}
