// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package certs issues the private CA and the leaf certificates that broker
// peers use for mutual TLS.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names written by Save.
const (
	CACertFile = "root-ca.crt"
	CAKeyFile  = "root-ca.key"
)

// CA is a certificate authority and its key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Leaf is a certificate issued by the CA. Name picks the file names.
type Leaf struct {
	Name        string
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// CertFile returns the file name of the leaf certificate.
func (l *Leaf) CertFile() string { return l.Name + ".crt" }

// KeyFile returns the file name of the leaf key.
func (l *Leaf) KeyFile() string { return l.Name + ".key" }

// GenerateCA creates a ten year root CA for deployment.
func GenerateCA(deployment string) (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Deckhand"},
			CommonName:   "Deckhand CA " + deployment,
		},
		NotBefore:             now,
		NotAfter:              now.AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := sign(template, template, key, key)
	if err != nil {
		return nil, oops.Code("CERT_CA_FAILED").With("deployment", deployment).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// Issue creates a one year leaf certificate valid for both the server and
// client side of a peer link, for localhost and the given hosts.
func (ca *CA) Issue(name string, hosts ...string) (*Leaf, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Deckhand"},
			CommonName:   "deckhand-" + name,
		},
		NotBefore:   now,
		NotAfter:    now.AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	cert, err := sign(template, ca.Certificate, key, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("CERT_ISSUE_FAILED").With("name", name).Wrap(err)
	}
	return &Leaf{Name: name, Certificate: cert, PrivateKey: key}, nil
}

// Save writes the CA and leaves into dir as PEM files readable only by the
// owner.
func Save(dir string, ca *CA, leaves ...*Leaf) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := writeCert(filepath.Join(dir, CACertFile), ca.Certificate); err != nil {
		return err
	}
	if err := writeKey(filepath.Join(dir, CAKeyFile), ca.PrivateKey); err != nil {
		return err
	}
	for _, leaf := range leaves {
		if err := writeCert(filepath.Join(dir, leaf.CertFile()), leaf.Certificate); err != nil {
			return err
		}
		if err := writeKey(filepath.Join(dir, leaf.KeyFile()), leaf.PrivateKey); err != nil {
			return err
		}
	}
	return nil
}

// LoadCA reads the CA written by Save.
func LoadCA(dir string) (*CA, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, CACertFile))
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("dir", dir).Wrap(err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, CAKeyFile))
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("dir", dir).Wrap(err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", CACertFile).Errorf("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", CACertFile).Wrap(err)
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", CAKeyFile).Errorf("no PEM block")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("file", CAKeyFile).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("CERT_KEY_FAILED").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("CERT_KEY_FAILED").Wrap(err)
	}
	return key, serial, nil
}

func sign(template, parent *x509.Certificate, key, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func writeCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func writeKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("file", path).Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("CERT_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("file", path).Wrap(err)
	}
	return nil
}
