package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/nidzo732/fleetwork/pkg/security"
)

// gen-ca and gen-cert are the external-tool PKI workflow spec §1 places out
// of scope for the master/worker processes themselves: an operator runs
// gen-ca once to mint a root, then gen-cert once per node, and points each
// node's config.SecurityConfig (variant "TLS") at the resulting files.

var genCACmd = &cobra.Command{
	Use:   "gen-ca",
	Short: "generate a root CA for fleetwork's TLS transport variant",
	RunE:  runGenCA,
}

var genCertCmd = &cobra.Command{
	Use:   "gen-cert",
	Short: "issue a node certificate signed by a CA created with gen-ca",
	RunE:  runGenCert,
}

func init() {
	rootCmd.AddCommand(genCACmd, genCertCmd)

	genCACmd.Flags().String("dir", "", "directory to write ca.crt/ca.key to (defaults to ~/.fleetwork/certs/ca-root)")

	genCertCmd.Flags().String("ca-dir", "", "directory holding ca.crt/ca.key from gen-ca (defaults to ~/.fleetwork/certs/ca-root)")
	genCertCmd.Flags().String("role", "master", "node role: master, worker, or cli")
	genCertCmd.Flags().String("node-id", "", "node identifier embedded in the certificate (required for master/worker)")
	genCertCmd.Flags().StringSlice("dns", nil, "DNS names to include in the certificate")
	genCertCmd.Flags().StringSlice("ip", nil, "IP addresses to include in the certificate")
	genCertCmd.Flags().String("out", "", "directory to write node.crt/node.key/ca.crt to (defaults under ~/.fleetwork/certs)")
	genCertCmd.Flags().Bool("force", false, "regenerate even if an unexpired certificate already exists at --out")
}

func runGenCA(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		var err error
		dir, err = security.GetCertDir("ca", "root")
		if err != nil {
			return fmt.Errorf("gen-ca: %w", err)
		}
	}

	ca := security.NewCertAuthority()
	if err := ca.Initialize(); err != nil {
		return fmt.Errorf("gen-ca: %w", err)
	}
	if err := ca.Persist(dir); err != nil {
		return fmt.Errorf("gen-ca: %w", err)
	}

	fmt.Printf("root CA written to %s\n", dir)
	return nil
}

func runGenCert(cmd *cobra.Command, args []string) error {
	caDir, _ := cmd.Flags().GetString("ca-dir")
	role, _ := cmd.Flags().GetString("role")
	nodeID, _ := cmd.Flags().GetString("node-id")
	dnsNames, _ := cmd.Flags().GetStringSlice("dns")
	ipStrings, _ := cmd.Flags().GetStringSlice("ip")
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")

	if caDir == "" {
		var err error
		caDir, err = security.GetCertDir("ca", "root")
		if err != nil {
			return fmt.Errorf("gen-cert: %w", err)
		}
	}
	if out == "" {
		var err error
		if role == "cli" {
			out, err = security.GetCLICertDir()
		} else {
			out, err = security.GetCertDir(role, nodeID)
		}
		if err != nil {
			return fmt.Errorf("gen-cert: %w", err)
		}
	}

	if !force && security.CertExists(out) {
		existing, err := security.LoadCertFromFile(out)
		if err == nil && !security.CertNeedsRotation(existing.Leaf) {
			fmt.Printf("%s already has a valid certificate at %s (expires %s), use --force to regenerate\n",
				role, out, security.GetCertExpiry(existing.Leaf).Format("2006-01-02"))
			return nil
		}
	}

	ca, err := security.LoadCertAuthority(caDir)
	if err != nil {
		return fmt.Errorf("gen-cert: %w", err)
	}

	var ips []net.IP
	for _, s := range ipStrings {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}

	cert, err := ca.IssueNodeCertificate(nodeID, role, dnsNames, ips)
	if err != nil {
		return fmt.Errorf("gen-cert: %w", err)
	}
	if err := security.SaveCertToFile(cert, out); err != nil {
		return fmt.Errorf("gen-cert: %w", err)
	}
	if err := security.SaveCACertToFile(ca.RootCert().Raw, out); err != nil {
		return fmt.Errorf("gen-cert: %w", err)
	}

	fmt.Printf("%s certificate for %q written to %s\n", role, nodeID, out)
	return nil
}
