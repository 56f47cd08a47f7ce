package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

func addr(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func selector(sel [4]byte) string {
	return "0x" + hex.EncodeToString(sel[:])
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
