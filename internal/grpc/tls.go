// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package grpc

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/samber/oops"
)

// TLSFiles names the PEM files of one side of a mutual TLS link.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Enabled reports whether any file is configured.
func (f TLSFiles) Enabled() bool {
	return f.CertFile != "" || f.KeyFile != "" || f.CAFile != ""
}

// ServerTLS loads a server config that requires client certificates signed
// by the CA.
func (f TLSFiles) ServerTLS() (*tls.Config, error) {
	cert, pool, err := f.load()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLS loads a client config that presents the certificate and trusts
// only the CA.
func (f TLSFiles) ClientTLS(serverName string) (*tls.Config, error) {
	cert, pool, err := f.load()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (f TLSFiles) load() (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return tls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", f.CertFile).
			With("key_file", f.KeyFile).
			Wrap(err)
	}
	caPEM, err := os.ReadFile(f.CAFile)
	if err != nil {
		return tls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").With("ca_file", f.CAFile).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").
			With("ca_file", f.CAFile).
			Errorf("no certificates found in CA file")
	}
	return cert, pool, nil
}
