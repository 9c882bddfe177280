// Package session implements the per-connection TCP command session:
// line dispatch against a command catalog, simulated clock and
// filesystem commands, and XMODEM handover for upload/download.
package session

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/carveratools/millmock/pkg/catalog"
	"github.com/carveratools/millmock/pkg/vfs"
)

// DefaultIdleTimeout is the read timeout enforced while waiting for the
// next command line.
const DefaultIdleTimeout = 10 * time.Second

// DefaultRetry is the XMODEM retry budget used for uploads/downloads that
// don't specify one explicitly.
const DefaultRetry = 10

// DefaultByteTimeout is the per-byte XMODEM adapter timeout.
const DefaultByteTimeout = time.Second

// DefaultUploadVerb and DefaultDownloadVerb are the catalog host-command
// keys that trigger XMODEM handover. They must match entries in the
// loaded catalog's host_commands table for upload/download to ever fire.
const (
	DefaultUploadVerb   = "upload "
	DefaultDownloadVerb = "download "
)

// Server owns the state that must be shared across connections: the
// single-active-session flag, the simulated clock, the virtual file
// store, and the command catalog. One Server is constructed in main and
// handed to every accepted connection.
type Server struct {
	Catalog *catalog.Catalog
	Store   vfs.Store

	IdleTimeout time.Duration
	Retry       int
	ByteTimeout time.Duration

	// UploadVerb and DownloadVerb are the resolved catalog host-command
	// keys that hand the connection over to the XMODEM engine. They must
	// exactly match a key in Catalog.Host for dispatch to recognize it.
	UploadVerb   string
	DownloadVerb string

	Logger *slog.Logger

	clock  simClock
	active atomic.Bool
}

// NewServer constructs a Server with the given catalog and store, ready
// to accept connections.
func NewServer(cat *catalog.Catalog, store vfs.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Catalog:      cat,
		Store:        store,
		IdleTimeout:  DefaultIdleTimeout,
		Retry:        DefaultRetry,
		ByteTimeout:  DefaultByteTimeout,
		UploadVerb:   DefaultUploadVerb,
		DownloadVerb: DefaultDownloadVerb,
		Logger:       logger.With("component", "session-server"),
	}
}

// Serve accepts connections on ln until it returns an error or the
// listener is closed. Each connection is handled on its own goroutine,
// per spec: the server multiplexes connections but never their state —
// only one session may be active at a time.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()
	logger := s.Logger.With("peer", peer)

	if !s.active.CompareAndSwap(false, true) {
		logger.Warn("rejecting concurrent connection")
		fmt.Fprint(conn, "ERROR: Server busy, only one connection allowed\n")
		return
	}
	defer s.active.Store(false)

	logger.Info("client connected")
	sess := &Session{
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		cwd:    "/",
		logger: logger,
	}
	sess.run()
	logger.Info("client disconnected")
}
