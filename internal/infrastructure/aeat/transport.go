package aeat

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verifactu/backend/internal/domain/ledger"
	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TransportConfig holds the SOAP transport settings. RequestTimeout has no
// safe default; an unconfigured timeout is rejected at construction.
type TransportConfig struct {
	ProductionEndpoint string
	TestingEndpoint    string
	CertificatePath    string
	CertificateKeyPath string
	RequestTimeout     time.Duration
}

// HTTPSoapTransport submits record batches to the AEAT SOAP endpoint over
// HTTPS with client-certificate authentication
type HTTPSoapTransport struct {
	config   TransportConfig
	envelope *EnvelopeBuilder
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPSoapTransport creates a new HTTPSoapTransport. The client
// certificate is loaded eagerly so a misconfigured path fails at startup
// rather than on the first submission.
func NewHTTPSoapTransport(config TransportConfig, envelope *EnvelopeBuilder, logger *zap.Logger) (*HTTPSoapTransport, error) {
	if config.RequestTimeout <= 0 {
		return nil, fmt.Errorf("aeat request timeout must be configured")
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.CertificatePath != "" {
		cert, err := tls.LoadX509KeyPair(config.CertificatePath, config.CertificateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load AEAT client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return &HTTPSoapTransport{
		config:   config,
		envelope: envelope,
		client: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
		logger: logger,
	}, nil
}

// Submit builds the envelope for the records, posts it to the environment's
// endpoint and parses the response. Transport failures and SOAP faults come
// back as AEAT_COMMUNICATION errors.
func (t *HTTPSoapTransport) Submit(ctx context.Context, env ledger.Environment, records []*ledger.LedgerRecord) (*remision.AeatResponse, error) {
	envelope, err := t.envelope.BuildEnvelope(records)
	if err != nil {
		return nil, err
	}

	endpoint := t.config.TestingEndpoint
	if env == ledger.EnvironmentProduction {
		endpoint = t.config.ProductionEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(envelope))
	if err != nil {
		return nil, shared.NewCommunicationError("failed to build AEAT request: " + err.Error())
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	t.logger.Debug("submitting to AEAT",
		zap.String("endpoint", endpoint),
		zap.Int("record_count", len(records)),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, shared.NewCommunicationError("AEAT transport failure: " + err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shared.NewCommunicationError("failed to read AEAT response: " + err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, shared.NewCommunicationError(fmt.Sprintf("AEAT endpoint returned HTTP %d", resp.StatusCode))
	}

	return ParseResponse(body)
}

// Probe checks that the environment's endpoint is reachable over the
// configured TLS setup. Any HTTP response counts as reachable; only a
// transport-level failure is an error.
func (t *HTTPSoapTransport) Probe(ctx context.Context, env ledger.Environment) error {
	endpoint := t.config.TestingEndpoint
	if env == ledger.EnvironmentProduction {
		endpoint = t.config.ProductionEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return shared.NewCommunicationError("failed to build AEAT probe request: " + err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return shared.NewCommunicationError("AEAT endpoint unreachable: " + err.Error())
	}
	return resp.Body.Close()
}
