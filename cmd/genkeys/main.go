// Command genkeys generates the credentials the service needs: an RSA
// keypair for signing access tokens and a random secret for refresh
// token digests.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

const (
	rsaKeyBits     = 2048
	secretBytesLen = 32
)

func main() {
	var outDir string

	fs := pflag.NewFlagSet("genkeys", pflag.ContinueOnError)
	fs.StringVarP(&outDir, "out", "o", ".", "Directory to write private.pem and public.pem")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := run(outDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(outDir string) error {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return fmt.Errorf("error while generating rsa key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("error while encoding public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	privatePath := filepath.Join(outDir, "private.pem")
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("error while writing %s: %w", privatePath, err)
	}

	publicPath := filepath.Join(outDir, "public.pem")
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("error while writing %s: %w", publicPath, err)
	}

	secret := make([]byte, secretBytesLen)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("error while generating token secret: %w", err)
	}

	fmt.Printf("keypair written to %s and %s\n", privatePath, publicPath)
	fmt.Printf("TOKEN_SECRET=%s\n", hex.EncodeToString(secret))

	return nil
}
