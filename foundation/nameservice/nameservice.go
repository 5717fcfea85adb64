// Package nameservice reads a wallet key-file folder and creates a name
// lookup from base58check address to the key file's own name, so logs and
// the admin API can show "miner1" instead of a raw address.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/xorcoin/node/foundation/walletkey"
)

// keyExtension is the suffix New walks for; wallet keys are written with
// this extension by the wallet CLI's generate command.
const keyExtension = ".key"

// NameService maintains a map of wallet addresses to names.
type NameService struct {
	names map[string]string
}

// New constructs a NameService from every *.key file under root, deriving
// each address from the file's stored private key and naming it after the
// file itself.
func New(root string) (*NameService, error) {
	ns := NameService{
		names: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}
		if info.IsDir() || path.Ext(fileName) != keyExtension {
			return nil
		}

		priv, err := walletkey.Load(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		address := priv.Public().Address()
		ns.names[address] = strings.TrimSuffix(path.Base(fileName), keyExtension)

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name registered for address, or address itself if
// nothing was found under that address.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.names[address]
	if !exists {
		return address
	}
	return name
}

// Copy returns a copy of the address-to-name map.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.names))
	for address, name := range ns.names {
		cpy[address] = name
	}
	return cpy
}
