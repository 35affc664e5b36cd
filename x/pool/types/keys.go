package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ModuleName defines the module name
	ModuleName = "pool"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// RouterKey defines the module's message routing key
	RouterKey = ModuleName
)

// Store key prefixes
var (
	PoolKeyPrefix   = []byte{0x01}
	MemberKeyPrefix = []byte{0x02}
	NextPoolIDKey   = []byte{0x03}
)

// PoolKey returns the store key of a pool
func PoolKey(poolID uint64) []byte {
	return append(append([]byte{}, PoolKeyPrefix...), sdk.Uint64ToBigEndian(poolID)...)
}

// MemberPrefix returns the prefix under which all member rows of a pool live
func MemberPrefix(poolID uint64) []byte {
	return append(append([]byte{}, MemberKeyPrefix...), sdk.Uint64ToBigEndian(poolID)...)
}

// MemberKey returns the store key of a member row
func MemberKey(poolID uint64, address string) []byte {
	return append(MemberPrefix(poolID), []byte(address)...)
}

// PoolIDFromKey decodes the pool id from a pool store key
func PoolIDFromKey(key []byte) uint64 {
	return sdk.BigEndianToUint64(key[len(PoolKeyPrefix):])
}
