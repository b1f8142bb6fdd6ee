package audit

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"floorbank/core/events"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	require.NoError(t, err)
	return NewSink(db, nil)
}

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestSinkPersistsRenderableEvents(t *testing.T) {
	sink := newTestSink(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	sink.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	sink.Emit(events.ParamsUpdated{Field: "buyFee", Value: "300"})
	sink.Emit(events.PriceUpdated{Operation: "buy", Price: uint256.NewInt(7), Backing: uint256.NewInt(1)})
	sink.Emit(events.VaultStarted{Owner: common.HexToAddress("0xa1"), Reserve: uint256.NewInt(5), Receipts: uint256.NewInt(5)})
	sink.Emit(plainEvent{})
	sink.Emit(nil)

	all, err := sink.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeVaultStarted, all[0].Type)

	prices, err := sink.List(context.Background(), Query{Type: events.TypePriceUpdated})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, "buy", prices[0].Operation)
	attrs, err := prices[0].Decoded()
	require.NoError(t, err)
	require.Equal(t, "7", attrs["price"])

	recent, err := sink.List(context.Background(), Query{Since: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := sink.List(context.Background(), Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)

	var missing *Sink
	missing.Emit(events.ParamsUpdated{})
	_, err = missing.List(context.Background(), Query{})
	require.Error(t, err)
}

func TestSinkHashChain(t *testing.T) {
	sink := newTestSink(t)
	for i := 0; i < 5; i++ {
		sink.Emit(events.ParamsUpdated{Field: "buyFee", Value: fmt.Sprint(100 + i)})
	}
	checked, err := sink.Verify(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, checked)

	records, err := sink.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.EqualValues(t, 5, records[0].Seq)
	require.Equal(t, records[1].Digest, records[0].PrevDigest)

	// A second sink over the same database continues the chain.
	resumed := NewSink(sink.db, nil)
	resumed.Emit(events.ParamsUpdated{Field: "sellFee", Value: "200"})
	checked, err = resumed.Verify(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 6, checked)

	require.NoError(t, sink.db.Model(&Record{}).Where("seq = ?", 3).
		Update("attributes", `{"field":"buyFee","value":"999"}`).Error)
	checked, err = resumed.Verify(context.Background())
	require.ErrorIs(t, err, ErrChainBroken)
	require.EqualValues(t, 2, checked)
}

func TestExportParquet(t *testing.T) {
	sink := newTestSink(t)
	sink.Emit(events.ParamsUpdated{Field: "buyFee", Value: "300"})
	sink.Emit(events.PriceUpdated{Operation: "buy", Price: uint256.NewInt(7), Backing: uint256.NewInt(1)})
	sink.Emit(events.ParamsUpdated{Field: "sellFee", Value: "200"})

	var buf bytes.Buffer
	n, err := sink.ExportParquet(context.Background(), &buf, Query{Type: events.TypeParamsUpdated})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(out, []byte("PAR1")))
}
