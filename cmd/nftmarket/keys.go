package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Print a fresh hex-encoded private key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		signer, err := crypto.NewSigner(key, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nkey:     %s\n", signer.Address().Hex(), key)
		return nil
	},
}

var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key <out-file>",
	Short: "Encrypt the wallet key with NFTMARKET_WALLET_KEY_PASSWORD and write it to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Wallet.PrivateKey == "" {
			return errors.New("wallet.private_key (or NFTMARKET_WALLET_PRIVATE_KEY) is not set")
		}
		blob, err := crypto.EncryptKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], blob, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address of the configured wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		signer, err := loadSigner(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signer.Address().Hex())
		return nil
	},
}

func loadSigner(cfg *config.Config) (*crypto.Signer, error) {
	return crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}, cfg.Chain.ChainID)
}
