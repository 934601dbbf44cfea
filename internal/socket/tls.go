package socket

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
)

// TLSConfig mirrors original_source's TlsConfig: a CA cert, a client
// identity expressed either as a PEM cert+key pair or a PKCS#12 bundle
// (never both), and a development-only certificate-verification bypass.
type TLSConfig struct {
	CACertPath string

	ClientCertPath string
	ClientKeyPath  string

	PKCS12Path     string
	PKCS12Password string

	InsecureSkipVerify bool
}

// IsZero reports whether no TLS configuration was supplied at all, in
// which case the session dials with websocket.DefaultDialer: a wss:// (or
// https://) endpoint still uses TLS with the system root CAs, and a ws://
// (or http://) endpoint is plaintext.
func (c TLSConfig) IsZero() bool {
	return c.CACertPath == "" && c.ClientCertPath == "" && c.PKCS12Path == "" && !c.InsecureSkipVerify
}

// buildTLSConfig assembles a *tls.Config from the given TLSConfig,
// enforcing that PEM pair and PKCS#12 identities are mutually exclusive —
// per original_source/.../client.rs's branch on file extension, made an
// explicit construction-time error here rather than inferred from a file
// suffix.
func buildTLSConfig(cfg TLSConfig, logger logFunc) (*tls.Config, error) {
	if cfg.ClientCertPath != "" && cfg.PKCS12Path != "" {
		return nil, fmt.Errorf("%w: TLS client cert (PEM) and PKCS#12 bundle are mutually exclusive", daemonerr.ErrInvalidInput)
	}

	tlsCfg := &tls.Config{}

	if cfg.CACertPath != "" {
		caPEM, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA cert: %v", daemonerr.ErrTLS, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w: parse CA cert", daemonerr.ErrTLS)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case cfg.ClientCertPath != "":
		if cfg.ClientKeyPath == "" {
			return nil, fmt.Errorf("%w: client key path required for PEM client cert", daemonerr.ErrInvalidInput)
		}
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: load client cert/key: %v", daemonerr.ErrTLS, err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

	case cfg.PKCS12Path != "":
		raw, err := os.ReadFile(cfg.PKCS12Path)
		if err != nil {
			return nil, fmt.Errorf("%w: read PKCS#12 bundle: %v", daemonerr.ErrTLS, err)
		}
		privKey, leaf, caCerts, err := pkcs12.DecodeChain(raw, cfg.PKCS12Password)
		if err != nil {
			return nil, fmt.Errorf("%w: decode PKCS#12 bundle: %v", daemonerr.ErrTLS, err)
		}
		chain := [][]byte{leaf.Raw}
		for _, ca := range caCerts {
			chain = append(chain, ca.Raw)
		}
		tlsCfg.Certificates = []tls.Certificate{{
			Certificate: chain,
			PrivateKey:  privKey,
			Leaf:        leaf,
		}}
	}

	if cfg.InsecureSkipVerify {
		logger("TLS certificate verification disabled - development only")
		tlsCfg.InsecureSkipVerify = true
	}

	return tlsCfg, nil
}

type logFunc func(msg string)
