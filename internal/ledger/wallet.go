package ledger

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// derivationPath is the standard Ethereum account path m/44'/60'/0'/0/0.
var derivationPath = []uint32{
	44 + hdkeychain.HardenedKeyStart,
	60 + hdkeychain.HardenedKeyStart,
	hdkeychain.HardenedKeyStart,
	0,
	0,
}

// DeriveWallet recovers the custodial signing key from a BIP-39 seed phrase.
func DeriveWallet(seedPhrase string) (*ecdsa.PrivateKey, common.Address, error) {
	seedPhrase = strings.TrimSpace(seedPhrase)
	if seedPhrase == "" {
		return nil, common.Address{}, errors.New("distribution wallet seed phrase not configured")
	}

	seed, err := bip39.NewSeedWithErrorChecking(seedPhrase, "")
	if err != nil {
		return nil, common.Address{}, err
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, common.Address{}, err
	}
	for _, step := range derivationPath {
		if key, err = key.Derive(step); err != nil {
			return nil, common.Address{}, err
		}
	}

	ecKey, err := key.ECPrivKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	priv := ecKey.ToECDSA()
	return priv, crypto.PubkeyToAddress(priv.PublicKey), nil
}
