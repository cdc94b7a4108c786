package storage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so each record family supports range
// scans, with zero-padded ids for lexicographic ordering.
const (
	prefixBalance = "bal:" // custodial balance entries
	prefixOrder   = "ord:" // order table (append-only)
	prefixEvent   = "evt:" // audit event journal
	keyOrderCount = "meta:ordercount"
)

// balanceKey formats "bal:{token}:{user}".
func balanceKey(token, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), user.Hex()))
}

// parseBalanceKey is the inverse of balanceKey.
func parseBalanceKey(key []byte) (token, user common.Address, err error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixBalance), ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return common.Address{}, common.Address{}, fmt.Errorf("malformed balance key %q", key)
	}
	return common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), nil
}

// orderKey formats "ord:{id:020d}" so iteration yields ascending ids.
func orderKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// eventKey formats "evt:{seq:020d}" so iteration replays in log order.
func eventKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
