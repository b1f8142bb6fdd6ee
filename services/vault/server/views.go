package server

import (
	"floorbank/core/types"
	"floorbank/native/vault"
)

type protocolView struct {
	Started          bool   `json:"started"`
	Owner            string `json:"owner"`
	Treasury         string `json:"treasury"`
	MasterMinter     string `json:"masterMinter"`
	MintCap          string `json:"mintCap"`
	TotalMinted      string `json:"totalMinted"`
	LastPrice        string `json:"lastPrice"`
	TotalCollateral  string `json:"totalCollateral"`
	TotalBorrowed    string `json:"totalBorrowed"`
	BuyFeeBps        uint64 `json:"buyFeeBps"`
	SellFeeBps       uint64 `json:"sellFeeBps"`
	LeverageFeeBps   uint64 `json:"leverageFeeBps"`
	FlashCloseFeeBps uint64 `json:"flashCloseFeeBps"`
	TreasuryShareBps uint64 `json:"treasuryShareBps"`
	LTVBps           uint64 `json:"ltvBps"`
	DustFloor        string `json:"dustFloor"`
	SweepCursor      uint64 `json:"sweepCursor"`
	Backing          string `json:"backing"`
	Supply           string `json:"supply"`
	Price            string `json:"price"`
	Custody          string `json:"custody"`
}

func newProtocolView(snap *vault.Snapshot) protocolView {
	p := snap.Protocol
	return protocolView{
		Started:          p.Started,
		Owner:            p.Owner.Hex(),
		Treasury:         p.Treasury.Hex(),
		MasterMinter:     p.MasterMinter.Hex(),
		MintCap:          amountString(p.MintCap),
		TotalMinted:      amountString(p.TotalMinted),
		LastPrice:        amountString(p.LastPrice),
		TotalCollateral:  amountString(p.TotalCollateral),
		TotalBorrowed:    amountString(p.TotalBorrowed),
		BuyFeeBps:        p.BuyFeeBps,
		SellFeeBps:       p.SellFeeBps,
		LeverageFeeBps:   p.LeverageFeeBps,
		FlashCloseFeeBps: p.FlashCloseFeeBps,
		TreasuryShareBps: p.TreasuryShareBps,
		LTVBps:           p.LTVBps,
		DustFloor:        amountString(p.DustFloor),
		SweepCursor:      p.SweepCursor,
		Backing:          amountString(snap.Backing),
		Supply:           amountString(snap.Supply),
		Price:            amountString(snap.Price),
		Custody:          amountString(snap.Custody),
	}
}

type loanView struct {
	Account    string `json:"account"`
	Active     bool   `json:"active"`
	Collateral string `json:"collateral"`
	Borrowed   string `json:"borrowed"`
	Maturity   uint64 `json:"maturity"`
	TenureDays uint64 `json:"tenureDays"`
}

func newLoanView(v *vault.LoanView) loanView {
	out := loanView{Account: v.Account.Hex(), Active: v.Active, Collateral: "0", Borrowed: "0"}
	if v.Loan != nil {
		out.Collateral = amountString(v.Loan.Collateral)
		out.Borrowed = amountString(v.Loan.Borrowed)
		out.Maturity = v.Loan.Maturity
		out.TenureDays = v.Loan.TenureDays
	}
	return out
}

type bucketView struct {
	Day        uint64 `json:"day"`
	Collateral string `json:"collateral"`
	Borrowed   string `json:"borrowed"`
}

type balanceView struct {
	Account string `json:"account"`
	Reserve string `json:"reserve"`
	Receipt string `json:"receipt"`
}

func newBalanceView(account string, acc *types.Account) balanceView {
	return balanceView{Account: account, Reserve: amountString(acc.Reserve), Receipt: amountString(acc.Receipt)}
}

func borrowQuoteView(q *vault.BorrowQuote) map[string]interface{} {
	return map[string]interface{}{
		"collateral":  amountString(q.Collateral),
		"borrowed":    amountString(q.Borrowed),
		"interest":    amountString(q.Interest),
		"payout":      amountString(q.Payout),
		"treasuryFee": amountString(q.TreasuryFee),
		"maturity":    q.Maturity,
	}
}

func leverageQuoteView(q *vault.LeverageQuote) map[string]interface{} {
	return map[string]interface{}{
		"fee":         amountString(q.Fee),
		"deposit":     amountString(q.Deposit),
		"borrowed":    amountString(q.Borrowed),
		"payment":     amountString(q.Payment),
		"collateral":  amountString(q.Collateral),
		"treasuryFee": amountString(q.TreasuryFee),
		"maturity":    q.Maturity,
	}
}
