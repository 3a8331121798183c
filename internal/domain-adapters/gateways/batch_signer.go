package gateways

import (
	"context"
	"fmt"

	"github.com/ochairo/kdibridge/internal/external-adapters/gpg"
)

// batchSigner wraps the external OpenPGP signer to implement the BatchSigner gateway
type batchSigner struct {
	signer *gpg.Signer
}

// NewBatchSigner loads the signing key at keyPath
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewBatchSigner(keyPath, passphrase string) (*batchSigner, error) {
	signer, err := gpg.NewSigner(keyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch signing key: %w", err)
	}
	return &batchSigner{signer: signer}, nil
}

// SignFile writes a detached armored signature next to path
func (s *batchSigner) SignFile(_ context.Context, path string) (string, error) {
	sigPath, err := s.signer.SignFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to sign batch %s: %w", path, err)
	}
	return sigPath, nil
}

// Fingerprint returns the signing key fingerprint
func (s *batchSigner) Fingerprint() string {
	return s.signer.Fingerprint()
}

// batchVerifier checks the integrity files written next to an emitted batch
type batchVerifier struct {
	verifier  *gpg.Verifier
	checksums *checksumVerifier
}

// NewBatchVerifier creates a verifier trusting the public keys in keyPath.
// An empty keyPath verifies checksums only.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewBatchVerifier(keyPath string) (*batchVerifier, error) {
	v := &batchVerifier{checksums: NewChecksumVerifier()}
	if keyPath == "" {
		return v, nil
	}

	v.verifier = gpg.NewVerifier()
	if err := v.verifier.ImportKeyFromFile(keyPath); err != nil {
		return nil, fmt.Errorf("failed to import public key: %w", err)
	}
	return v, nil
}

// VerifyBatch checks the checksum file and, when keys are loaded, the
// signature of path. It returns the signing key fingerprint, if any.
func (v *batchVerifier) VerifyBatch(ctx context.Context, path string) (string, error) {
	if err := v.checksums.VerifyChecksumFile(ctx, path); err != nil {
		return "", err
	}
	if v.verifier == nil {
		return "", nil
	}

	fingerprint, err := v.verifier.VerifySignatureFromFile(path, path+gpg.SignatureExt)
	if err != nil {
		return "", err
	}
	return fingerprint, nil
}
