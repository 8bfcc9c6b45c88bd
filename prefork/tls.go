package prefork

import (
	"crypto/tls"
	"net"

	"github.com/rzajac/onewire"
)

// serveTLS wraps an already-listening ln (inherited fd or reuseport
// listener) with TLS loaded from certFile/keyFile and serves it.
func serveTLS(s *onewire.Server, ln net.Listener, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	return s.Serve(tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}}))
}

// serveTLSEmbed is like serveTLS but the certificate and key are
// already loaded in memory.
func serveTLSEmbed(s *onewire.Server, ln net.Listener, certData, keyData []byte) error {
	cert, err := tls.X509KeyPair(certData, keyData)
	if err != nil {
		return err
	}
	return s.Serve(tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}}))
}
