// Package tls manages the certificate of the operations HTTP endpoint.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// DefaultValidity is the lifetime of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour

// renewBefore is how long before expiry EnsureCertificate replaces a
// generated certificate.
const renewBefore = 7 * 24 * time.Hour

// subjectAltNames returns the DNS names and IP addresses the certificate is
// issued for: localhost, the machine hostname and the given hosts.
func subjectAltNames(hosts []string) (dnsNames []string, ipAddresses []net.IP) {
	dnsNames = []string{"localhost"}
	ipAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		dnsNames = append(dnsNames, hostname)
	}

	for _, h := range hosts {
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			if !ip.IsUnspecified() {
				ipAddresses = append(ipAddresses, ip)
			}
			continue
		}
		dnsNames = append(dnsNames, h)
	}
	return dnsNames, ipAddresses
}

// GenerateSelfSignedCert writes a self-signed ECDSA P-256 certificate and its
// key as PEM files. The key file is readable by the owner only.
func GenerateSelfSignedCert(certPath, keyPath string, validity time.Duration, hosts ...string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	dnsNames, ipAddresses := subjectAltNames(hosts)
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Realmgate"},
			CommonName:   "realmgate operations endpoint",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil { //nolint:gosec // certificates are public
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// LoadCertificate parses the first certificate in a PEM file and checks that
// it is currently valid.
func LoadCertificate(certPath string) (*x509.Certificate, error) {
	data, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return cert, errors.New("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return cert, errors.New("certificate has expired")
	}
	return cert, nil
}

// EnsureCertificate generates a certificate when either file is missing or
// the existing certificate expires within a week. It reports whether a new
// certificate was written.
func EnsureCertificate(certPath, keyPath string, hosts ...string) (bool, error) {
	if fileExists(certPath) && fileExists(keyPath) {
		cert, err := LoadCertificate(certPath)
		if err == nil && time.Until(cert.NotAfter) > renewBefore {
			return false, nil
		}
	}

	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return false, fmt.Errorf("failed to create certificate directory: %w", err)
		}
	}
	if err := GenerateSelfSignedCert(certPath, keyPath, DefaultValidity, hosts...); err != nil {
		return false, err
	}
	return true, nil
}

// NewServerConfig loads the key pair into a server TLS configuration.
func NewServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
