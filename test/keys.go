package test

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/routing/route"
)

// CreateKey returns a deterministically generated key pair.
func CreateKey(index int32) (*btcec.PrivateKey, *btcec.PublicKey) {
	// Avoid all zeros, because it results in an invalid key.
	privKey, pubKey := btcec.PrivKeyFromBytes([]byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(index + 1),
	})

	return privKey, pubKey
}

// CreateNodeID returns the hex encoded public key of a deterministic node
// identity, as the marketplace reports buyer accounts.
func CreateNodeID(index int32) string {
	_, pubKey := CreateKey(index)

	return route.NewVertex(pubKey).String()
}
