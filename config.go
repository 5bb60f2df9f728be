package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"parallelyou/config"
)

// findSSLCertificates returns the configured certificate pair, or looks for
// one in common locations when none is configured
func findSSLCertificates(tls config.TLSConfig) (certPath, keyPath string, found bool) {
	if tls.CertFile != "" || tls.KeyFile != "" {
		if fileExists(tls.CertFile) && fileExists(tls.KeyFile) {
			return tls.CertFile, tls.KeyFile, true
		}
		logrus.WithFields(logrus.Fields{
			"cert": tls.CertFile,
			"key":  tls.KeyFile,
		}).Warn("Configured TLS files not found")
		return "", "", false
	}

	if fileExists("cert.pem") && fileExists("key.pem") {
		return "cert.pem", "key.pem", true
	}

	// Let's Encrypt
	if domain := os.Getenv("BASE_DOMAIN"); domain != "" {
		base := filepath.Join("/etc/letsencrypt/live", domain)
		certFile := filepath.Join(base, "fullchain.pem")
		keyFile := filepath.Join(base, "privkey.pem")
		if fileExists(certFile) && fileExists(keyFile) {
			logrus.WithField("path", base).Info("Found Let's Encrypt certificates")
			return certFile, keyFile, true
		}
	}

	alternatives := []struct{ cert, key string }{
		{"/etc/ssl/certs/cert.pem", "/etc/ssl/private/key.pem"},
		{"/etc/ssl/cert.pem", "/etc/ssl/key.pem"},
	}
	for _, p := range alternatives {
		if fileExists(p.cert) && fileExists(p.key) {
			logrus.WithField("path", filepath.Dir(p.cert)).Info("Found certificates")
			return p.cert, p.key, true
		}
	}

	return "", "", false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
