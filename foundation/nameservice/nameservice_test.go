package nameservice_test

import (
	"path/filepath"
	"testing"

	"github.com/xorcoin/node/foundation/blockchain/signature"
	"github.com/xorcoin/node/foundation/nameservice"
	"github.com/xorcoin/node/foundation/walletkey"
)

func Test_LookupKnownAddress(t *testing.T) {
	dir := t.TempDir()

	priv, _, address, err := signature.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Should be able to generate a key pair: %s", err)
	}
	if err := walletkey.Save(filepath.Join(dir, "miner1.key"), priv); err != nil {
		t.Fatalf("Should be able to save the key: %s", err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("Should be able to construct a name service: %s", err)
	}

	if got := ns.Lookup(address); got != "miner1" {
		t.Fatalf("Should resolve the address to its key file's name, got %q.", got)
	}
}

func Test_LookupUnknownAddressFallsBack(t *testing.T) {
	ns, err := nameservice.New(t.TempDir())
	if err != nil {
		t.Fatalf("Should be able to construct a name service: %s", err)
	}

	if got := ns.Lookup("unknown-address"); got != "unknown-address" {
		t.Fatalf("Should fall back to the address itself, got %q.", got)
	}
}

func Test_IgnoresNonKeyFiles(t *testing.T) {
	dir := t.TempDir()

	priv, _, address, err := signature.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Should be able to generate a key pair: %s", err)
	}
	if err := walletkey.Save(filepath.Join(dir, "miner1.key"), priv); err != nil {
		t.Fatalf("Should be able to save the key: %s", err)
	}
	if err := walletkey.Save(filepath.Join(dir, "notes.txt"), priv); err != nil {
		t.Fatalf("Should be able to write the non-key file: %s", err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("Should be able to construct a name service: %s", err)
	}

	cpy := ns.Copy()
	if len(cpy) != 1 {
		t.Fatalf("Should only register *.key files, got %d entries.", len(cpy))
	}
	if cpy[address] != "miner1" {
		t.Fatalf("Should still register the one key file correctly, got %q.", cpy[address])
	}
}

func Test_CopyIsIndependent(t *testing.T) {
	dir := t.TempDir()

	priv, _, address, err := signature.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Should be able to generate a key pair: %s", err)
	}
	if err := walletkey.Save(filepath.Join(dir, "miner1.key"), priv); err != nil {
		t.Fatalf("Should be able to save the key: %s", err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("Should be able to construct a name service: %s", err)
	}

	cpy := ns.Copy()
	cpy[address] = "tampered"

	if got := ns.Lookup(address); got != "miner1" {
		t.Fatalf("Mutating a copy should not affect the name service, got %q.", got)
	}
}
