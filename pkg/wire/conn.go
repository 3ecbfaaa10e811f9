package wire

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Conn is one framed, optionally authenticated/encrypted connection. It
// wraps a net.Conn (plain TCP or *tls.Conn for VariantTLS) with the
// variant's payload transform and the length-prefix framing of spec §4.1.
type Conn struct {
	nc          net.Conn
	transformer transformer
	timeout     time.Duration
}

// Send writes one frame carrying payload, transformed per the configured
// security variant.
func (c *Conn) Send(payload []byte) error {
	wire, err := c.transformer.encode(payload)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return writeFrame(c.nc, wire)
}

// Receive reads one frame and returns its decoded payload.
func (c *Conn) Receive() ([]byte, error) {
	if c.timeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.timeout))
	}
	wire, err := readFrame(c.nc)
	if err != nil {
		return nil, err
	}
	return c.transformer.decode(wire)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer address, used by pkg/listener to attribute an
// inbound session to a configured worker.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Dial opens a new connection to addr using cfg's security variant.
func Dial(addr string, cfg *Config) (*Conn, error) {
	timeout := cfg.timeout()
	if cfg.Variant == VariantTLS {
		return dialTLS(addr, cfg, timeout)
	}
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	t, err := cfg.newTransformer()
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &Conn{nc: nc, transformer: t, timeout: timeout}, nil
}

func dialTLS(addr string, cfg *Config, timeout time.Duration) (*Conn, error) {
	if cfg.TLS == nil {
		return nil, fmt.Errorf("wire: tls variant selected without TLSConfig")
	}
	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: timeout}
	nc, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("wire: tls dial %s: %w", addr, err)
	}
	return &Conn{nc: nc, transformer: plainTransformer{}, timeout: timeout}, nil
}

// Listener accepts framed connections under one security variant.
type Listener struct {
	nl  net.Listener
	cfg *Config
}

// Listen opens a listening socket on addr using cfg's security variant. An
// HMAC variant refuses to listen unless a listener key is configured,
// matching spec §4.1's "A listener refuses to listen unless the listener
// key is configured."
func Listen(addr string, cfg *Config) (*Listener, error) {
	if cfg.Variant == VariantHMAC && len(cfg.RecvKey) == 0 {
		return nil, fmt.Errorf("wire: hmac listener requires a configured recv key")
	}
	if cfg.Variant == VariantTLS {
		if cfg.TLS == nil {
			return nil, fmt.Errorf("wire: tls variant selected without TLSConfig")
		}
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		nl, err := tls.Listen("tcp", addr, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("wire: tls listen %s: %w", addr, err)
		}
		return &Listener{nl: nl, cfg: cfg}, nil
	}
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: listen %s: %w", addr, err)
	}
	return &Listener{nl: nl, cfg: cfg}, nil
}

// Accept blocks for the next inbound connection and wraps it in a Conn.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, fmt.Errorf("wire: accept: %w", err)
	}
	t, err := l.cfg.newTransformer()
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &Conn{nc: nc, transformer: t, timeout: l.cfg.timeout()}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.nl.Close()
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}
