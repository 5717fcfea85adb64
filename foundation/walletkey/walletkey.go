// Package walletkey reads and writes the hex-encoded private key files
// used by the wallet CLI and read back by the node's nameservice.
package walletkey

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/xorcoin/node/foundation/blockchain/signature"
)

// Load reads and decodes the private key stored at path.
func Load(path string) (signature.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return signature.PrivateKey{}, err
	}

	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return signature.PrivateKey{}, fmt.Errorf("decoding key file: %w", err)
	}

	return signature.PrivateKeyFromBytes(b)
}

// Save hex-encodes priv and writes it to path, creating the file with
// owner-only permissions since it grants full spending authority.
func Save(path string, priv signature.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(priv.Bytes())), 0o600)
}
