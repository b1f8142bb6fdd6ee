package state

import (
	"github.com/ethereum/go-ethereum/common"

	"floorbank/native/vault"
)

var _ vault.Transaction = (*Tx)(nil)

// GetProtocol returns the stored protocol record or nil when the vault has
// not been initialised.
func (tx *Tx) GetProtocol() (*vault.Protocol, error) {
	protocol := new(vault.Protocol)
	ok, err := tx.getRLP(vaultProtocolKey, protocol)
	if err != nil || !ok {
		return nil, err
	}
	protocol.EnsureDefaults()
	return protocol, nil
}

// PutProtocol persists the protocol record.
func (tx *Tx) PutProtocol(protocol *vault.Protocol) error {
	record := protocol.Clone()
	record.EnsureDefaults()
	return tx.putRLP(vaultProtocolKey, record)
}

// GetLoan returns the loan held by addr or nil.
func (tx *Tx) GetLoan(addr common.Address) (*vault.Loan, error) {
	loan := new(vault.Loan)
	ok, err := tx.getRLP(loanKey(addr), loan)
	if err != nil || !ok {
		return nil, err
	}
	return loan.Clone(), nil
}

// PutLoan persists the loan held by addr.
func (tx *Tx) PutLoan(addr common.Address, loan *vault.Loan) error {
	return tx.putRLP(loanKey(addr), loan.Clone())
}

// DeleteLoan removes the loan held by addr.
func (tx *Tx) DeleteLoan(addr common.Address) error {
	return tx.delete(loanKey(addr))
}

// GetBucket returns the maturity bucket for day. Missing buckets are zero.
func (tx *Tx) GetBucket(day uint64) (*vault.Bucket, error) {
	bucket := new(vault.Bucket)
	if _, err := tx.getRLP(bucketKey(day), bucket); err != nil {
		return nil, err
	}
	bucket.EnsureDefaults()
	return bucket, nil
}

// PutBucket persists the maturity bucket for day.
func (tx *Tx) PutBucket(day uint64, bucket *vault.Bucket) error {
	record := &vault.Bucket{Collateral: bucket.Collateral, Borrowed: bucket.Borrowed}
	record.EnsureDefaults()
	return tx.putRLP(bucketKey(day), record)
}
