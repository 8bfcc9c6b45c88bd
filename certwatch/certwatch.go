// Package certwatch builds a tls.Config.GetCertificate callback that
// reloads its certificate/key pair from disk whenever fsnotify reports
// either file changed, so a long-running Server does not need a
// restart after a certificate renewal.
package certwatch

import (
	"crypto/tls"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the currently loaded certificate and keeps it fresh.
type Watcher struct {
	certFile, keyFile string
	current           atomic.Value // *tls.Certificate
	watcher           *fsnotify.Watcher
	logf              func(format string, args ...interface{})
}

// New loads certFile/keyFile once, starts watching both for changes,
// and returns a Watcher. logf may be nil. Call Close when done.
func New(certFile, keyFile string, logf func(string, ...interface{})) (*Watcher, error) {
	w := &Watcher{certFile: certFile, keyFile: keyFile, logf: logf}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(certFile); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(keyFile); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(); err != nil && w.logf != nil {
				w.logf("certwatch: reload failed: %v", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logf != nil {
				w.logf("certwatch: watch error: %v", err)
			}
		}
	}
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return err
	}
	w.current.Store(&cert)
	return nil
}

// GetCertificate is installed as tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.current.Load().(*tls.Certificate), nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
