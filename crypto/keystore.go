package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// SaveToKeystore writes a Secp256k1 controller key to an Ethereum v3 keystore
// file at the given path. The node's controller identity always uses
// Secp256k1: it is the only scheme the keystore format can persist.
// If the parent directory does not exist it is created with 0700 permissions.
func SaveToKeystore(path string, key PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	secpKey, ok := key.(secp256k1Key)
	if !ok {
		return errors.New("crypto: keystore persistence requires a Secp256k1 controller key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ecdsaKey, err := ethcrypto.ToECDSA(secpKey.priv.Serialize())
	if err != nil {
		return err
	}

	ks := keystore.NewKeyStore(tmpDir, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := ks.ImportECDSA(ecdsaKey, passphrase); err != nil {
		return err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied
// passphrase and returns the Secp256k1 controller key.
func LoadFromKeystore(path, passphrase string) (PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return PrivateKeyFromBytes(ethcrypto.FromECDSA(decrypted.PrivateKey))
}
