package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ddbridge/internal/common"
	"ddbridge/internal/config"
	"ddbridge/internal/ui"
	"ddbridge/pkg/errors"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Protect credentials stored in the configuration file",
}

var secretEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt plaintext secrets in the configuration file",
	Long: `Encrypt the Snowflake password and the S3 keys in the configuration file
using AES-256-GCM. Values already encrypted or stored in the keyring are
left alone.

The encryption key is derived from:
1. DDBRIDGE_ENCRYPTION_KEY environment variable (if set)
2. Machine-specific identifier (hostname + home directory)`,
	Args: cobra.NoArgs,
	RunE: runSecretEncrypt,
}

var secretStoreCmd = &cobra.Command{
	Use:   "store NAME",
	Short: "Save a secret in the system keyring",
	Long: `Save a secret in the system keyring and print the reference to use in the
configuration file, for example password: keyring:snowflake.`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretStore,
}

var (
	secretBackup bool
	secretValue  string
)

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretEncryptCmd, secretStoreCmd)

	secretEncryptCmd.Flags().BoolVar(&secretBackup, "backup", true, "Create backup of original config")
	secretStoreCmd.Flags().StringVar(&secretValue, "value", "", "Secret value (prompted for when omitted)")
}

func runSecretEncrypt(cmd *cobra.Command, args []string) error {
	configFile := viper.GetString("config")
	if configFile == "" {
		configFile = config.GetConfigFile()
	}
	path, err := common.CleanPath(configFile)
	if err != nil {
		return errors.ConfigError(err.Error(), "config")
	}
	ui.ShowInfo(fmt.Sprintf("Reading configuration from: %s", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigNotFound, "failed to read config file").
			WithContext("path", path)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	if secretBackup {
		backupFile := path + ".backup"
		if err := os.WriteFile(backupFile, data, common.FilePermissionSecure); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		ui.ShowSuccess(fmt.Sprintf("Created backup: %s", backupFile))
	}

	if err := config.EncryptSecrets(cfg); err != nil {
		return err
	}
	if err := config.SaveFile(cfg, path); err != nil {
		return err
	}
	ui.ShowSuccess("Configuration secrets encrypted")
	return nil
}

func runSecretStore(cmd *cobra.Command, args []string) error {
	value := secretValue
	if value == "" {
		if !ui.IsInteractive() {
			return errors.InvalidArgument("value", "pass --value when not running in a terminal")
		}
		var err error
		if value, err = ui.Password("Secret value", "Stored in the system keyring under "+config.KeyringService); err != nil {
			return err
		}
	}

	ref, err := config.StoreSecret(args[0], value)
	if err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Stored secret %s", args[0]))
	ui.PrintKeyValue("Config value", ref)
	return nil
}
