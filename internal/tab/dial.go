package tab

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// tlsConfigSeq hands out unique TLS config-registration names for
// go-sql-driver/mysql, which registers custom TLS configs process-wide by
// name (mysql.RegisterTLSConfig). Guarded by a mutex since multiple tabs may
// connect concurrently during a hostgroup connect wave.
var (
	tlsRegisterMu  sync.Mutex
	tlsConfigSeq   int
)

// buildDSN constructs a go-sql-driver/mysql DSN for ep, registering a named
// TLS config first when ep.TLSMode requires one.
func buildDSN(ep endpoint.Endpoint) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = ep.User
	cfg.Passwd = ep.Password
	cfg.DBName = "information_schema"
	cfg.ParseTime = false
	cfg.InterpolateParams = true

	if ep.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = ep.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", ep.Host, ep.Port)
	}

	tlsName, err := registerTLS(ep)
	if err != nil {
		return "", err
	}
	if tlsName != "" {
		cfg.TLSConfig = tlsName
	}

	return cfg.FormatDSN(), nil
}

// registerTLS maps an Endpoint's TLSMode onto a registered
// go-sql-driver/mysql TLS config name, or "" for TLSOff. verify-ca and
// verify-identity load ep.TLSCA/TLSCert/TLSKey; required negotiates TLS
// without verifying the server certificate.
func registerTLS(ep endpoint.Endpoint) (string, error) {
	switch ep.TLSMode {
	case "", endpoint.TLSOff:
		return "", nil
	case endpoint.TLSRequired:
		return "skip-verify", nil
	}

	tlsCfg := &tls.Config{ServerName: ep.Host}
	if ep.TLSMode == endpoint.TLSVerifyCA {
		tlsCfg.InsecureSkipVerify = true
	}
	if ep.TLSCA != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(ep.TLSCA)
		if err != nil {
			return "", dolphieerr.Wrap(dolphieerr.Configuration, err, "reading TLS CA file")
		}
		if !pool.AppendCertsFromPEM(pem) {
			return "", dolphieerr.New(dolphieerr.Configuration, "TLS CA file contains no usable certificates")
		}
		tlsCfg.RootCAs = pool
	}
	if ep.TLSCert != "" && ep.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(ep.TLSCert, ep.TLSKey)
		if err != nil {
			return "", dolphieerr.Wrap(dolphieerr.Configuration, err, "loading TLS client certificate")
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	tlsRegisterMu.Lock()
	tlsConfigSeq++
	name := fmt.Sprintf("dolphie-%d", tlsConfigSeq)
	tlsRegisterMu.Unlock()

	if err := mysql.RegisterTLSConfig(name, tlsCfg); err != nil {
		return "", dolphieerr.Wrap(dolphieerr.Configuration, err, "registering TLS config")
	}
	return name, nil
}

// Connect opens and pings a *sql.DB for ep, bounding the ping with a short
// timeout so a dead endpoint is classified promptly rather than hanging the
// caller indefinitely.
func Connect(ctx context.Context, ep endpoint.Endpoint) (*sql.DB, error) {
	dsn, err := buildDSN(ep)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.Connection, err, "opening connection")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, dolphieerr.Wrap(dolphieerr.Connection, err, "pinging "+ep.Key())
	}
	return db, nil
}

// ReplicaDialer adapts Connect to the replica.Dialer interface the Replica
// Tracker uses to open auxiliary connections, reusing the primary's
// credentials and TLS settings against a different host:port.
type ReplicaDialer struct{}

func (ReplicaDialer) Dial(ctx context.Context, host string, port int, credentials endpoint.Endpoint) (*sql.DB, error) {
	ep := credentials
	ep.Host = host
	ep.Port = port
	ep.Socket = ""
	return Connect(ctx, ep)
}
