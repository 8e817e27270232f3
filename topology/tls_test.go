// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/youmark/pkcs8"

	"github.com/nodaldb/nodal-go-driver/connstring"
)

func TestNewTLSConfigDisabledReturnsNil(t *testing.T) {
	cfg, err := NewTLSConfig(connstring.ConnString{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config when TLS is not requested")
	}
}

func TestNewTLSConfigInsecure(t *testing.T) {
	cfg, err := NewTLSConfig(connstring.ConnString{TLS: true, TLSInsecure: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || !cfg.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify to be set")
	}
}

func TestNewTLSConfigLoadsCAFile(t *testing.T) {
	dir := t.TempDir()
	certPEM, _ := makeSelfSignedCert(t)
	caPath := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caPath, certPEM, 0600); err != nil {
		t.Fatalf("writing CA file: %v", err)
	}

	cfg, err := NewTLSConfig(connstring.ConnString{TLS: true, TLSCAFile: caPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatalf("expected RootCAs to be populated")
	}
}

func TestNewTLSConfigLoadsEncryptedClientCertificate(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyDER := makeSelfSignedCert(t)

	encrypted, err := pkcs8.MarshalPrivateKey(mustParsePKCS1(t, keyDER), []byte("hunter2"), nil)
	if err != nil {
		t.Fatalf("encrypting key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encrypted})

	combined := append(append([]byte{}, certPEM...), keyPEM...)
	path := filepath.Join(dir, "client.pem")
	if err := os.WriteFile(path, combined, 0600); err != nil {
		t.Fatalf("writing client cert/key: %v", err)
	}

	cfg, err := NewTLSConfig(connstring.ConnString{
		TLS:                           true,
		TLSCertificateKeyFile:         path,
		TLSCertificateKeyFilePassword: "hunter2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected exactly one client certificate, got %d", len(cfg.Certificates))
	}
	if cfg.Certificates[0].PrivateKey == nil {
		t.Fatalf("expected a decrypted private key")
	}
}

func TestNewTLSConfigWrongPasswordFails(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyDER := makeSelfSignedCert(t)
	encrypted, err := pkcs8.MarshalPrivateKey(mustParsePKCS1(t, keyDER), []byte("hunter2"), nil)
	if err != nil {
		t.Fatalf("encrypting key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encrypted})
	combined := append(append([]byte{}, certPEM...), keyPEM...)
	path := filepath.Join(dir, "client.pem")
	if err := os.WriteFile(path, combined, 0600); err != nil {
		t.Fatalf("writing client cert/key: %v", err)
	}

	_, err = NewTLSConfig(connstring.ConnString{
		TLS:                           true,
		TLSCertificateKeyFile:         path,
		TLSCertificateKeyFilePassword: "wrong",
	})
	if err == nil {
		t.Fatal("expected an error decrypting with the wrong password")
	}
}

func makeSelfSignedCert(t *testing.T) (certPEM []byte, keyDER []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER = x509.MarshalPKCS1PrivateKey(key)
	return certPEM, keyDER
}

func mustParsePKCS1(t *testing.T, der []byte) *rsa.PrivateKey {
	t.Helper()
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		t.Fatalf("parsing generated key: %v", err)
	}
	return key
}
