// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ocsp"

	"github.com/nodaldb/nodal-go-driver/connstring"
)

// NewTLSConfig builds a *tls.Config from a connection string's TLS options,
// loading the client certificate/key and CA file referenced on disk. A
// PKCS#8 private key encrypted with TLSCertificateKeyFilePassword is
// decrypted via youmark/pkcs8, since crypto/tls cannot load one on its own.
func NewTLSConfig(cs connstring.ConnString) (*tls.Config, error) {
	if !cs.TLS {
		return nil, nil
	}
	cfg := &tls.Config{
		InsecureSkipVerify: cs.TLSInsecure || cs.TLSAllowInvalidCertificates,
	}

	if cs.TLSCAFile != "" {
		pool, err := loadCAFile(cs.TLSCAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if cs.TLSCertificateKeyFile != "" {
		cert, err := loadClientCertificate(cs.TLSCertificateKeyFile, cs.TLSCertificateKeyFilePassword)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if cs.TLSAllowInvalidHostnames {
		cfg.InsecureSkipVerify = true
	}

	cfg.VerifyConnection = func(state tls.ConnectionState) error {
		if len(state.VerifiedChains) == 0 || len(state.VerifiedChains[0]) < 2 {
			return nil
		}
		leaf := state.VerifiedChains[0][0]
		issuer := state.VerifiedChains[0][1]
		return verifyOCSPStaple(leaf, issuer, state.OCSPResponse)
	}
	return cfg, nil
}

func loadCAFile(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("topology: no certificates found in %s", path)
	}
	return pool, nil
}

// loadClientCertificate reads a PEM file containing a certificate chain and
// a private key, decrypting the key with password if it is an encrypted
// PKCS#8 block.
func loadClientCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("topology: reading certificate key file: %w", err)
	}

	var certDER [][]byte
	var keyDER []byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case strings.HasSuffix(block.Type, "CERTIFICATE"):
			certDER = append(certDER, block.Bytes)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keyDER = block.Bytes
			if password != "" {
				key, err := pkcs8.ParsePrivateKey(block.Bytes, []byte(password))
				if err != nil {
					return tls.Certificate{}, fmt.Errorf("topology: decrypting PKCS#8 key: %w", err)
				}
				if rsaKey, ok := key.(*rsa.PrivateKey); ok {
					keyDER = x509.MarshalPKCS1PrivateKey(rsaKey)
				} else if der, err := x509.MarshalPKCS8PrivateKey(key); err == nil {
					keyDER = der
				}
			}
		}
	}
	if len(certDER) == 0 || keyDER == nil {
		return tls.Certificate{}, fmt.Errorf("topology: %s contains no certificate/key pair", path)
	}

	cert := tls.Certificate{Certificate: certDER}
	key, err := parsePrivateKeyDER(keyDER)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert.PrivateKey = key
	return cert, nil
}

func parsePrivateKeyDER(der []byte) (interface{}, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("topology: unsupported private key encoding")
}

// verifyOCSPStaple checks a stapled OCSP response against the leaf
// certificate's issuer, failing closed only when the staple is present and
// says the certificate was revoked; an absent staple is not itself a
// hard failure since not every CA staples responses.
func verifyOCSPStaple(leaf, issuer *x509.Certificate, staple []byte) error {
	if len(staple) == 0 {
		return nil
	}
	resp, err := ocsp.ParseResponseForCert(staple, leaf, issuer)
	if err != nil {
		return fmt.Errorf("topology: parsing OCSP staple: %w", err)
	}
	if resp.Status == ocsp.Revoked {
		return fmt.Errorf("topology: certificate revoked per stapled OCSP response")
	}
	return nil
}
