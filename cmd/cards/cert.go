package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/homecards/pkg/cert"
)

func certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate management for the agent",
		Long:  "Create a CA and issue the server and client certificates used for mTLS between 'cards serve' and 'cards list --remote'.",
	}

	cmd.AddCommand(certInitCmd())
	cmd.AddCommand(certIssueCmd())
	cmd.AddCommand(certVerifyCmd())

	return cmd
}

// defaultCertDir is ~/.cards/certs
func defaultCertDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cards", "certs"), nil
}

func resolveCertDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return defaultCertDir()
}

func certInitCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize certificate authority",
		Long: `Create a self-signed CA used to sign agent certificates.

Examples:
  # Initialize CA in ~/.cards/certs
  cards cert init

  # Force overwrite existing CA
  cards cert init --dir ./certs --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveCertDir(dir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create certificate directory: %w", err)
			}

			certPath := filepath.Join(dir, "ca.pem")
			keyPath := filepath.Join(dir, "ca-key.pem")

			if !force {
				if _, err := os.Stat(certPath); err == nil {
					return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", certPath)
				}
			}

			issuer, err := cert.NewIssuer()
			if err != nil {
				return fmt.Errorf("failed to create CA: %w", err)
			}
			if err := issuer.SaveCA(certPath, keyPath); err != nil {
				return fmt.Errorf("failed to save CA: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Certificate Authority initialized successfully")
			fmt.Fprintf(out, "CA Certificate: %s\n", certPath)
			fmt.Fprintf(out, "CA Private Key: %s\n", keyPath)
			fmt.Fprintln(out, "\nIMPORTANT: Keep the private key secure and backed up!")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Certificate directory (default: ~/.cards/certs)")
	cmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing CA")

	return cmd
}

func certIssueCmd() *cobra.Command {
	var (
		dir      string
		name     string
		hosts    []string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue <server|client>",
		Short: "Issue a server or client certificate",
		Long: `Issue a certificate signed by the CA created with 'cards cert init'.
Files are written to <dir>/<role>.pem and <dir>/<role>-key.pem.

Examples:
  # Server certificate for the agent host
  cards cert issue server --host localhost --host 10.0.0.5

  # Client certificate for 'cards list --remote'
  cards cert issue client --name laptop`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(cert.RoleServer), string(cert.RoleClient)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCertDir(dir)
			if err != nil {
				return err
			}
			role := cert.Role(args[0])
			if role == cert.RoleServer && len(hosts) == 0 {
				hosts = []string{"localhost", "127.0.0.1"}
			}
			if name == "" {
				name = "cards " + string(role)
			}

			issuer, err := cert.LoadCA(filepath.Join(dir, "ca.pem"), filepath.Join(dir, "ca-key.pem"))
			if err != nil {
				return fmt.Errorf("failed to load CA (run 'cards cert init' first): %w", err)
			}

			c, err := issuer.Issue(cert.Request{
				Role:       role,
				CommonName: name,
				Hosts:      hosts,
				Validity:   validity,
			})
			if err != nil {
				return err
			}

			certPath := filepath.Join(dir, string(role)+".pem")
			keyPath := filepath.Join(dir, string(role)+"-key.pem")
			if err := c.Save(certPath, keyPath); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issued %s certificate %q valid until %s\n", role, name, c.NotAfter.Format(time.RFC3339))
			fmt.Fprintf(out, "Certificate: %s\n", certPath)
			fmt.Fprintf(out, "Private Key: %s\n", keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Certificate directory (default: ~/.cards/certs)")
	cmd.Flags().StringVar(&name, "name", "", "Certificate common name")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "DNS name or IP the server is reached at (repeatable)")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "How long the certificate is valid")

	return cmd
}

func certVerifyCmd() *cobra.Command {
	var caPath string

	cmd := &cobra.Command{
		Use:   "verify <certificate>",
		Short: "Verify a certificate against the CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caPath == "" {
				dir, err := defaultCertDir()
				if err != nil {
					return err
				}
				caPath = filepath.Join(dir, "ca.pem")
			}

			result, err := cert.VerifyCertificateFile(args[0], caPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cert.FormatVerifyResult(result))
			if !result.Valid {
				return fmt.Errorf("certificate verification failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caPath, "ca", "", "CA certificate (default: ~/.cards/certs/ca.pem)")

	return cmd
}
