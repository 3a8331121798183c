package gateways

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestVerifyChecksum tests SHA256 checksum verification
func TestVerifyChecksum(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "qualys_was_kdi_1.json")

	if err := os.WriteFile(testFile, []byte(`{"version":2}`), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	verifier := NewChecksumVerifier()

	actualSum, err := verifier.CalculateChecksum(testFile)
	if err != nil {
		t.Fatalf("CalculateChecksum() error = %v", err)
	}
	if len(actualSum) != 64 {
		t.Errorf("CalculateChecksum() returned checksum length = %d, want 64 (SHA256 hex)", len(actualSum))
	}

	t.Run("valid checksum", func(t *testing.T) {
		if err := verifier.VerifyChecksum(context.Background(), testFile, strings.ToUpper(actualSum)); err != nil {
			t.Errorf("VerifyChecksum() with valid checksum error = %v", err)
		}
	})

	t.Run("invalid checksum", func(t *testing.T) {
		invalidSum := strings.Repeat("0", 64)
		if err := verifier.VerifyChecksum(context.Background(), testFile, invalidSum); err == nil {
			t.Error("VerifyChecksum() with invalid checksum should return error")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		if err := verifier.VerifyChecksum(context.Background(), "/nonexistent/file.json", actualSum); err == nil {
			t.Error("VerifyChecksum() with non-existent file should return error")
		}
	})
}

func TestChecksumFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "checkmarx_sast_kdi_9.json")
	if err := os.WriteFile(testFile, []byte(`{"assets":[]}`), 0600); err != nil {
		t.Fatal(err)
	}

	verifier := NewChecksumVerifier()
	sum, err := verifier.WriteChecksumFile(testFile)
	if err != nil {
		t.Fatalf("WriteChecksumFile() error = %v", err)
	}

	line, err := os.ReadFile(testFile + ChecksumExt)
	if err != nil {
		t.Fatal(err)
	}
	if want := sum + "  checkmarx_sast_kdi_9.json\n"; string(line) != want {
		t.Errorf("checksum file = %q, want %q", line, want)
	}

	if err := verifier.VerifyChecksumFile(context.Background(), testFile); err != nil {
		t.Errorf("VerifyChecksumFile() error = %v", err)
	}

	if err := os.WriteFile(testFile, []byte(`{"assets":[1]}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := verifier.VerifyChecksumFile(context.Background(), testFile); err == nil {
		t.Error("VerifyChecksumFile() should fail after the file changed")
	}
}
