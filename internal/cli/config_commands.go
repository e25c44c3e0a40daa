package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudsdk/cloudxfer/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cloudxfer configuration",
		Long: `Configuration management commands for cloudxfer.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default path.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for cloudxfer.

The configuration is saved to ~/.config/cloudxfer/config and the token to
~/.config/cloudxfer/token (mode 0600).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, tokenValue, err := runConfigInit(bufio.NewReader(cmd.InOrStdin()), out)
			if err != nil {
				return err
			}

			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\n✓ Configuration saved to: %s\n", path)

			if tokenValue != "" {
				tokenPath := filepath.Join(filepath.Dir(path), "token")
				if err := config.WriteTokenFile(tokenPath, tokenValue); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Token saved to: %s\n", tokenPath)
				if cfgFile != "" {
					fmt.Fprintf(out, "\nPass it with: cloudxfer --config %s --token-file %s <command>\n", path, tokenPath)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit asks the init questions. Empty answers keep the defaults.
// The token is returned separately so it is stored in its own file.
func runConfigInit(in *bufio.Reader, out io.Writer) (*config.Config, string, error) {
	cfg := config.NewConfig()

	ask := func(label, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		input, _ := in.ReadString('\n')
		if v := strings.TrimSpace(input); v != "" {
			return v
		}
		return def
	}
	askInt := func(label string, def int) int {
		v, err := strconv.Atoi(ask(label, strconv.Itoa(def)))
		if err != nil || v <= 0 {
			return def
		}
		return v
	}

	fmt.Fprintln(out, "cloudxfer Configuration Setup")
	fmt.Fprintln(out, "=============================")
	fmt.Fprintln(out)

	cfg.Environment = ask("Environment", cfg.Environment)
	cfg.Domains.Dev = ask("Dev domain", cfg.Domains.Dev)
	cfg.Domains.Release = ask("Release domain", cfg.Domains.Release)
	cfg.Domains.CNDev = ask("CN dev domain", cfg.Domains.CNDev)
	cfg.Domains.CNRelease = ask("CN release domain", cfg.Domains.CNRelease)

	tokenValue, err := promptSecret("Bearer token (Enter to skip): ")
	if errors.Is(err, errNoTerminal) {
		tokenValue = ask("Bearer token (Enter to skip)", "")
	} else if err != nil {
		return nil, "", err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Transfer Settings (press Enter for defaults)")
	fmt.Fprintln(out, "--------------------------------------------")
	cfg.Transfer.BodyEncoding = ask("Body encoding (multipart, raw)", cfg.Transfer.BodyEncoding)
	cfg.Transfer.MaxConcurrent = askInt("Max concurrent uploads", cfg.Transfer.MaxConcurrent)

	fmt.Fprintln(out)
	proxy := strings.ToLower(ask("Configure proxy? [y/N]", ""))
	if proxy == "y" || proxy == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.Proxy.Mode = ask("Proxy mode", "system")
		if cfg.Proxy.Mode != "no-proxy" && cfg.Proxy.Mode != "system" {
			cfg.Proxy.Host = ask("Proxy host", "")
			cfg.Proxy.Port = askInt("Proxy port", 8080)
			cfg.Proxy.User = ask("Proxy user", "")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, tokenValue, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/cloudxfer/config)
  2. Token file (~/.config/cloudxfer/token or --token-file)
  3. Environment variables (CLOUDXFER_TOKEN, CLOUDXFER_ENV, HTTPS_PROXY)
  4. Command-line flags (--token, --env)

Priority: flags > environment > token file > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithFlags(token, tokenFile, environment)

			printConfig(cmd.OutOrStdout(), cfg)

			fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - using defaults)")
			}
			return nil
		},
	}

	return cmd
}

// printConfig writes cfg without secrets.
func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Cloud Settings:")
	fmt.Fprintf(out, "  Environment: %s\n", cfg.Environment)
	fmt.Fprintf(out, "  Domain:      %s\n", cfg.Domain())
	if cfg.Token != "" {
		fmt.Fprintf(out, "  Token:       <set (%d chars)>\n", len(cfg.Token))
	} else {
		fmt.Fprintln(out, "  Token:       <not set>")
	}
	fmt.Fprintln(out)

	t := cfg.Transfer
	fmt.Fprintln(out, "Transfer Settings:")
	fmt.Fprintf(out, "  Max Attempts:   %d\n", t.MaxAttempts)
	fmt.Fprintf(out, "  Retry Delay:    %s\n", t.RetryDelay)
	fmt.Fprintf(out, "  Chunk Size:     %d\n", t.ChunkSize)
	fmt.Fprintf(out, "  Size Limit:     %d\n", t.SizeLimit)
	fmt.Fprintf(out, "  Bulk Category:  %d\n", t.BulkCategory)
	fmt.Fprintf(out, "  Client TTL:     %s\n", t.ClientTTL)
	fmt.Fprintf(out, "  Body Encoding:  %s\n", t.BodyEncoding)
	fmt.Fprintf(out, "  Max Concurrent: %d\n", t.MaxConcurrent)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.Proxy.Host)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.Proxy.Port)
	}
	if cfg.Proxy.NoProxy != "" {
		fmt.Fprintf(out, "  No Proxy:   %s\n", cfg.Proxy.NoProxy)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Dev Server:")
	fmt.Fprintf(out, "  Listen:     %s\n", cfg.Dev.Listen)
	fmt.Fprintf(out, "  Public URL: %s\n", cfg.Dev.PublicURL)
	fmt.Fprintf(out, "  Backend:    %s\n", cfg.Dev.Backend)
	fmt.Fprintf(out, "  URL TTL:    %s\n", cfg.Dev.URLTTL)
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: cloudxfer config init")
			}
			return nil
		},
	}

	return cmd
}
