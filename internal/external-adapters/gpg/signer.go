package gpg

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// SignatureExt is appended to a file path to name its detached signature
const SignatureExt = ".asc"

// Signer produces armored detached signatures with one private key
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner loads the first private key of an armored key file and
// decrypts it with passphrase when it is protected
func NewSigner(keyPath, passphrase string) (*Signer, error) {
	//nolint:gosec // G304: keyPath is the configured signing key
	f, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open signing key: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	keys, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	for _, entity := range keys {
		if entity.PrivateKey == nil {
			continue
		}
		if entity.PrivateKey.Encrypted {
			if passphrase == "" {
				return nil, fmt.Errorf("signing key %X is encrypted and no passphrase is set", entity.PrimaryKey.Fingerprint)
			}
			if err := entity.DecryptPrivateKeys([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("failed to decrypt signing key: %w", err)
			}
		}
		return &Signer{entity: entity}, nil
	}

	return nil, fmt.Errorf("no private key found in %s", keyPath)
}

// Fingerprint returns the hex fingerprint of the signing key
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("%X", s.entity.PrimaryKey.Fingerprint)
}

// Sign writes an armored detached signature of message to w
func (s *Signer) Sign(w io.Writer, message io.Reader) error {
	if err := openpgp.ArmoredDetachSign(w, s.entity, message, nil); err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	return nil
}

// SignFile writes filePath+SignatureExt next to filePath and returns its path
func (s *Signer) SignFile(filePath string) (string, error) {
	//nolint:gosec // G304: filePath is a batch file written by this process
	data, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer data.Close()

	sigPath := filePath + SignatureExt
	//nolint:gosec // G304: signature path derives from the batch file path
	sig, err := os.Create(sigPath)
	if err != nil {
		return "", fmt.Errorf("failed to create signature file: %w", err)
	}

	if err := s.Sign(sig, data); err != nil {
		_ = sig.Close()
		return "", err
	}
	if err := sig.Close(); err != nil {
		return "", fmt.Errorf("failed to write signature file: %w", err)
	}

	return sigPath, nil
}

// ExportPublicKey writes the armored public key of the signer to w
func (s *Signer) ExportPublicKey(w io.Writer) error {
	enc, err := armor.Encode(w, openpgp.PublicKeyType, nil)
	if err != nil {
		return fmt.Errorf("failed to start armor: %w", err)
	}
	if err := s.entity.Serialize(enc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to serialize public key: %w", err)
	}
	return enc.Close()
}
