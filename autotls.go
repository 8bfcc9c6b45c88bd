package onewire

import (
	"crypto/tls"

	"golang.org/x/crypto/acme/autocert"
)

// ListenAndServeAutoTLS serves HTTPS on addr for the given domains,
// provisioning certificates automatically via Let's Encrypt using the
// TLS-ALPN-01 challenge (no separate port-80 listener needed).
// cacheDir, if non-empty, is used as an autocert.DirCache so renewed
// certificates survive a restart.
func (s *Server) ListenAndServeAutoTLS(addr, cacheDir string, domains ...string) error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
	}
	if cacheDir != "" {
		m.Cache = autocert.DirCache(cacheDir)
	}

	tlsLn, err := tls.Listen("tcp", addr, m.TLSConfig())
	if err != nil {
		return err
	}
	return s.Serve(tlsLn)
}
