package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/advisorbot/internal/config"
	"github.com/dohr-michael/advisorbot/internal/secrets"
)

// NewSecretsCommand returns the secrets command group: generating the
// at-rest identity and decrypting credentials into .env.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Manage age-encrypted credentials (provider API keys, collaborator tokens)",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Generate the age identity used to decrypt stored credentials",
				Action: runSecretsInit,
			},
			{
				Name:      "set",
				Usage:     "Decrypt an ENC[age:...] value and store it in .env",
				ArgsUsage: "<key> <enc-value>",
				Action:    runSecretsSet,
			},
		},
	}
}

func runSecretsInit(_ context.Context, _ *cli.Command) error {
	path := secrets.KeyPath()
	if err := secrets.GenerateIdentity(path); err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}
	identity, err := secrets.LoadIdentity(path)
	if err != nil {
		return fmt.Errorf("load age identity: %w", err)
	}
	fmt.Printf("identity ready at %s\n", path)
	fmt.Printf("public key: %s\n", identity.Recipient().String())
	return nil
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().Get(0)
	value := cmd.Args().Get(1)
	if key == "" || value == "" {
		return fmt.Errorf("usage: advisorbot secrets set <key> <enc-value>")
	}
	if !secrets.IsEncrypted(value) {
		return fmt.Errorf("value must be an ENC[age:...] blob (plaintext is rejected)")
	}

	identity, err := secrets.LoadIdentity(secrets.KeyPath())
	if err != nil {
		return fmt.Errorf("load age identity (run 'advisorbot secrets init' first): %w", err)
	}

	plaintext, err := secrets.Decrypt(value, identity)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	if err := secrets.SetEntry(config.DotenvPath(), key, plaintext); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}

	fmt.Printf("%s stored in %s\n", key, config.DotenvPath())
	return nil
}
