package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"syscall"

	"github.com/upmon/upmon/internal/monitor"
)

// classify maps a transport error onto the stable, user-facing error kinds.
// Order matters: timeouts win over the failing phase, TLS and DNS failures
// are named before the generic connect/transport buckets.
func classify(err error) monitor.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return monitor.ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return monitor.ErrKindTimeout
	}

	if isTLSError(err) {
		return monitor.ErrKindTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return monitor.ErrKindDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return monitor.ErrKindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return monitor.ErrKindConnect
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return monitor.ErrKindTransport
	}

	return monitor.ErrKindOther
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return true
	}
	var certErr x509.CertificateInvalidError
	return errors.As(err, &certErr)
}
