package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/threatflux/inlineScanRunnerGo/internal/config"
	"github.com/threatflux/inlineScanRunnerGo/internal/scanner"
	"github.com/threatflux/inlineScanRunnerGo/internal/secure"
)

// newSecureClient builds a backend client from the sysdig and proxy sections
func newSecureClient(cfg *config.Config, logger *logrus.Logger) (*secure.Client, error) {
	opts := []secure.Option{
		secure.WithLogger(logger),
		secure.WithTLSVerify(cfg.Sysdig.TLSVerify),
		secure.WithRateLimit(cfg.Sysdig.RequestsPerSecond, cfg.Sysdig.Burst),
	}
	if cfg.Sysdig.RequestTimeout > 0 {
		opts = append(opts, secure.WithTimeout(cfg.Sysdig.RequestTimeout))
	}
	if cfg.Proxy.URL != "" {
		opts = append(opts, secure.WithProxy(secure.ProxySettings{
			URL:      cfg.Proxy.URL,
			NoProxy:  cfg.Proxy.NoProxy,
			User:     cfg.Proxy.User,
			Password: cfg.Proxy.Password,
		}))
	}
	return secure.New(cfg.Sysdig.Token, cfg.Sysdig.URL, opts...)
}

func newSubmitCommand(opts *globalOptions) *cobra.Command {
	var dockerfile string

	cmd := &cobra.Command{
		Use:   "submit <tag>",
		Short: "Submit a registry image to the backend for analysis and print its digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var contents string
			if dockerfile != "" {
				data, err := os.ReadFile(dockerfile)
				if err != nil {
					return fmt.Errorf("cannot read Dockerfile: %w", err)
				}
				contents = string(data)
			}

			cfg, logger, err := loadRuntime(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, err := newSecureClient(cfg, logger)
			if err != nil {
				return err
			}

			digest, err := client.SubmitImage(cmd.Context(), args[0], contents, map[string]string{
				"added-by": scanner.AddedBy,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dockerfile, "dockerfile", "f", "", "Dockerfile sent along with the submission")
	return cmd
}

func newReportCommand(opts *globalOptions) *cobra.Command {
	var vulnerabilities bool

	cmd := &cobra.Command{
		Use:   "report <tag> <digest>",
		Short: "Print the policy evaluation of an analyzed image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, err := newSecureClient(cfg, logger)
			if err != nil {
				return err
			}

			var report interface{}
			if vulnerabilities {
				report, err = client.RetrieveVulnerabilities(cmd.Context(), args[1])
			} else {
				report, err = client.RetrieveCheckResults(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&vulnerabilities, "vulnerabilities", false, "print the vulnerability listing instead of the policy evaluation")
	return cmd
}

func newEncryptCommand() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "encrypt-token [value]",
		Short: "Encrypt a secret for use as an enc: configuration value",
		Long: "Encrypt a secret for use as an enc: configuration value. The value is read " +
			"from stdin when not given. The key defaults to ISCAN_SECURITY_ENCRYPTION_KEY.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				var err error
				key, err = config.DefaultEnvProvider().Require("SECURITY_ENCRYPTION_KEY")
				if err != nil {
					return err
				}
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				var err error
				value, err = readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			encrypted, err := config.EncryptValue(value, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "encryption passphrase")
	return cmd
}

func readSecret(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no value to encrypt")
	}
	return line, nil
}
