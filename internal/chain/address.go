// Package chain validates wallet addresses and talks to EVM JSON-RPC nodes.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	apperrors "airdrop-eligibility-api/pkg/errors"
)

// Kind classifies a wallet address.
type Kind string

const (
	KindEVM    Kind = "evm"
	KindSolana Kind = "solana"
)

const solanaPubkeyLen = 32

// ValidateAddress accepts 0x-prefixed 20-byte hex addresses and base58
// encoded 32-byte Solana public keys.
func ValidateAddress(address string) (Kind, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperrors.New(apperrors.ErrValidation, "wallet address is required", nil)
	}
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		if !common.IsHexAddress(address) {
			return "", apperrors.New(apperrors.ErrValidation, "invalid EVM address: "+address, nil)
		}
		return KindEVM, nil
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != solanaPubkeyLen {
		return "", apperrors.New(apperrors.ErrValidation, "invalid wallet address: "+address, err)
	}
	return KindSolana, nil
}

// NormalizeAddress returns the key form of a wallet: lower-cased and trimmed.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
