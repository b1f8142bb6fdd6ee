package state

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	accountPrefix      = []byte("account/")
	tokenSupplyPrefix  = []byte("token/supply/")
	vaultProtocolKey   = ethcrypto.Keccak256([]byte("vault/protocol"))
	vaultLoanPrefix    = []byte("vault/loan/")
	vaultBucketPrefix  = []byte("vault/bucket/")
	presalePoolPrefix  = []byte("presale/pool/")
	presaleSharePrefix = []byte("presale/share/")
)

func prefixed(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func accountKey(addr common.Address) []byte {
	return ethcrypto.Keccak256(prefixed(accountPrefix, addr.Bytes()))
}

func tokenSupplyKey(symbol string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	return ethcrypto.Keccak256(prefixed(tokenSupplyPrefix, []byte(normalized)))
}

func loanKey(addr common.Address) []byte {
	return ethcrypto.Keccak256(prefixed(vaultLoanPrefix, addr.Bytes()))
}

func bucketKey(day uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], day)
	return ethcrypto.Keccak256(prefixed(vaultBucketPrefix, buf[:]))
}

func presalePoolKey(pool common.Address) []byte {
	return ethcrypto.Keccak256(prefixed(presalePoolPrefix, pool.Bytes()))
}

func presaleShareKey(pool, account common.Address) []byte {
	return ethcrypto.Keccak256(prefixed(presaleSharePrefix, append(pool.Bytes(), account.Bytes()...)))
}
