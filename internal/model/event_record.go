package model

import (
	"fmt"
	"math/big"
	"strings"
)

// EventRecord is a decoded ledger log observed by the watcher.
// Integer arguments are held as *big.Int and addresses as hex strings.
type EventRecord struct {
	Name        string                 `json:"name"`
	Address     string                 `json:"address"`
	BlockNumber uint64                 `json:"block_number"`
	BlockHash   string                 `json:"block_hash"`
	TxHash      string                 `json:"tx_hash"`
	LogIndex    uint64                 `json:"log_index"`
	Args        map[string]interface{} `json:"args"`
}

// Key identifies the record across poll cycles.
func (e EventRecord) Key() string {
	return fmt.Sprintf("%s:%d:%s", strings.ToLower(e.TxHash), e.LogIndex, e.Name)
}

// Uint returns an integer argument that fits in uint64.
func (e EventRecord) Uint(name string) (uint64, bool) {
	switch v := e.Args[name].(type) {
	case *big.Int:
		if v == nil || !v.IsUint64() {
			return 0, false
		}
		return v.Uint64(), true
	case uint64:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// Addr returns an address argument.
func (e EventRecord) Addr(name string) (string, bool) {
	v, ok := e.Args[name].(string)
	return v, ok && v != ""
}
