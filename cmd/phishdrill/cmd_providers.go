package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/config"
	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage LLM providers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers in routing order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			printProviders(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	setKey := &cobra.Command{
		Use:   "set-key <name>",
		Short: "Store an API key in ~/.phishdrill/secrets.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			key := viperForCmd(cmd).GetString("key")
			if key == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Enter %s API key: ", args[0])
				key, err = readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			}
			if err := setProviderKey(cfg, args[0], key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key for %s saved\n", args[0])
			return nil
		},
	}
	setKey.Flags().String("key", "", "API key (prompted for when empty)")
	cmd.AddCommand(setKey)
	return cmd
}

func providerStatus(p *config.ProviderConfig) string {
	switch {
	case !p.Enabled:
		return "disabled"
	case p.Kind == config.KindOllama || p.APIKey != "":
		return "ready"
	default:
		return "needs API key"
	}
}

func printProviders(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configured LLM providers (routing order):")
	for i, p := range cfg.LLM.Providers {
		fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, p.ID(), p.Kind)
		fmt.Fprintf(w, "     status: %s\n", providerStatus(p))
		if p.Model != "" {
			fmt.Fprintf(w, "     model:  %s\n", p.Model)
		}
		if p.URL != "" {
			fmt.Fprintf(w, "     url:    %s\n", p.URL)
		}
	}
}

// setProviderKey merges key into the secrets file under the provider's name.
func setProviderKey(cfg *config.Config, name, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	var target *config.ProviderConfig
	var names []string
	for _, p := range cfg.LLM.Providers {
		names = append(names, p.ID())
		if p.ID() == name {
			target = p
		}
	}
	if target == nil {
		return fmt.Errorf("unknown provider: %s (configured: %s)", name, strings.Join(names, ", "))
	}
	if target.Kind == config.KindOllama {
		return fmt.Errorf("%s does not use an API key", name)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	secrets[name] = key
	if err := config.SaveSecrets(secrets); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
