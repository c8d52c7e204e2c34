package cert

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	Role        Role
	Error       string
	Certificate *x509.Certificate
}

// VerifyCertificateFile checks that certPath was signed by the CA in caCertPath
// for use as an agent server or client certificate
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	certBlock, err := readPEM(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	caBlock, err := readPEM(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return Verify(cert, caCert, time.Now()), nil
}

// Verify checks cert against caCert at the given time
func Verify(cert, caCert *x509.Certificate, at time.Time) *VerifyResult {
	roots := x509.NewCertPool()
	roots.AddCert(caCert)

	result := &VerifyResult{
		Certificate: cert,
		Role:        roleOf(cert),
	}

	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: at,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := cert.Verify(opts); err != nil {
		result.Error = err.Error()
		return result
	}
	if result.Role == "" {
		result.Error = "certificate is neither a server nor a client certificate"
		return result
	}

	result.Valid = true
	return result
}

func roleOf(cert *x509.Certificate) Role {
	for _, u := range cert.ExtKeyUsage {
		switch u {
		case x509.ExtKeyUsageServerAuth:
			return RoleServer
		case x509.ExtKeyUsageClientAuth:
			return RoleClient
		}
	}
	return ""
}

// FormatVerifyResult formats verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	sb.WriteString("Certificate Verification Result\n")
	sb.WriteString("===============================\n\n")

	if result.Valid {
		sb.WriteString("Status: VALID ✓\n")
	} else {
		sb.WriteString("Status: INVALID ✗\n")
		sb.WriteString(fmt.Sprintf("Error: %s\n", result.Error))
	}

	c := result.Certificate
	sb.WriteString("\nCertificate Details:\n")
	if result.Role != "" {
		sb.WriteString(fmt.Sprintf("  Role: %s\n", result.Role))
	}
	sb.WriteString(fmt.Sprintf("  Subject: %s\n", c.Subject))
	sb.WriteString(fmt.Sprintf("  Issuer: %s\n", c.Issuer))
	sb.WriteString(fmt.Sprintf("  Serial: %s\n", c.SerialNumber))
	sb.WriteString(fmt.Sprintf("  Valid From: %s\n", c.NotBefore.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("  Valid Until: %s\n", c.NotAfter.Format(time.RFC3339)))

	hosts := append([]string{}, c.DNSNames...)
	for _, ip := range c.IPAddresses {
		hosts = append(hosts, ip.String())
	}
	if len(hosts) > 0 {
		sb.WriteString(fmt.Sprintf("  Hosts: %s\n", strings.Join(hosts, ", ")))
	}

	return sb.String()
}
