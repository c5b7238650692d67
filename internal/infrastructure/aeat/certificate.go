package aeat

import (
	"crypto/tls"
	"crypto/x509"
	"time"
)

// CertificateStatus reports the state of the configured AEAT client
// certificate without exposing the key material
type CertificateStatus struct {
	Configured bool       `json:"configured"`
	Valid      bool       `json:"valid"`
	Subject    string     `json:"subject,omitempty"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	NotAfter   *time.Time `json:"not_after,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// CertificateInspector inspects the certificate files named in the
// transport configuration
type CertificateInspector struct {
	certPath string
	keyPath  string
}

// NewCertificateInspector creates a new CertificateInspector
func NewCertificateInspector(certPath, keyPath string) *CertificateInspector {
	return &CertificateInspector{certPath: certPath, keyPath: keyPath}
}

// Status loads and parses the certificate pair. The files are re-read on
// every call so a replaced certificate is reported without a restart.
func (i *CertificateInspector) Status() *CertificateStatus {
	if i.certPath == "" {
		return &CertificateStatus{Configured: false}
	}

	pair, err := tls.LoadX509KeyPair(i.certPath, i.keyPath)
	if err != nil {
		return &CertificateStatus{Configured: true, Error: err.Error()}
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return &CertificateStatus{Configured: true, Error: err.Error()}
	}

	now := time.Now()
	notBefore, notAfter := leaf.NotBefore, leaf.NotAfter
	return &CertificateStatus{
		Configured: true,
		Valid:      now.After(notBefore) && now.Before(notAfter),
		Subject:    leaf.Subject.String(),
		NotBefore:  &notBefore,
		NotAfter:   &notAfter,
	}
}
