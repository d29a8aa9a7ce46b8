package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Well-known development mnemonic; first account at m/44'/60'/0'/0/0.
const devMnemonic = "test test test test test test test test test test test junk"

func TestDeriveWallet(t *testing.T) {
	_, addr, err := DeriveWallet(devMnemonic)
	require.NoError(t, err)
	require.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())
}

func TestDeriveWalletRejectsEmpty(t *testing.T) {
	_, _, err := DeriveWallet("   ")
	require.Error(t, err)
}

func TestDeriveWalletRejectsBadChecksum(t *testing.T) {
	_, _, err := DeriveWallet("test test test test test test test test test test test test")
	require.Error(t, err)
}
