// keygen is a CLI tool for generating the PEM key files the validation
// service loads at startup: an RSA envelope decryption key and an EC P-256
// token signing key.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	vscrypto "github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/version"
)

const (
	encKeyFileName  = "enc.pem"
	signKeyFileName = "sign.pem"
)

var (
	outputDir string
	rsaSize   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "keygen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "key generator for the validation service",
		Long:              "Generate the RSA encryption and EC signing key PEM files consumed via ENC_KEY_FILE and SIGN_KEY_FILE",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a fresh key pair set",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated keys [required]")
	generateCmd.Flags().IntVarP(&rsaSize, "size", "s", 3072, "RSA key size in bits (2048, 3072 or 4096)")
	_ = generateCmd.MarkFlagRequired("outputdir")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if rsaSize != 2048 && rsaSize != 3072 && rsaSize != 4096 {
		return fmt.Errorf("invalid RSA key size: %d (must be 2048, 3072 or 4096)", rsaSize)
	}

	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Generating %d-bit RSA encryption key\n", rsaSize)
	encKey, err := vscrypto.GenerateRSAKeyPair(rsaSize)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}
	encPath := filepath.Join(outputDir, encKeyFileName)
	if err := vscrypto.SavePrivateKeyToPEMFile(encKey, encPath); err != nil {
		return fmt.Errorf("failed to save encryption key: %w", err)
	}
	fmt.Printf("✓ Encryption key: %s\n", encPath)

	fmt.Println("Generating P-256 signing key")
	signKey, err := vscrypto.GenerateECKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate EC key: %w", err)
	}
	signPath := filepath.Join(outputDir, signKeyFileName)
	if err := vscrypto.SavePrivateKeyToPEMFile(signKey, signPath); err != nil {
		return fmt.Errorf("failed to save signing key: %w", err)
	}
	fmt.Printf("✓ Signing key:    %s\n", signPath)

	return nil
}
