package session

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/carveratools/millmock/pkg/ioadapter"
	"github.com/carveratools/millmock/pkg/xmodem"
)

// handleUpload enters the XMODEM receive regime to pull a file from the
// client into the virtual store at path. The TCP byte stream is
// exclusively owned by the engine for the duration of the transfer; no
// other session work interleaves.
func (s *Session) handleUpload(path string) {
	path = normalizePath(s.cwd, path)

	var existingMD5 string
	if f, ok := s.server.Store.Read(path); ok {
		existingMD5 = f.MD5
	}

	adapter := ioadapter.NewTCP(s.conn)
	adapter.SetReader(s.reader)

	var buf bytes.Buffer
	result := xmodem.Receive(context.Background(), adapter, &buf, existingMD5, true,
		s.server.Retry, s.server.ByteTimeout, 0, &xmodem.Cancel{}, nil, s.logger)

	switch result.Outcome {
	case xmodem.Md5Match:
		s.writeLine("Upload canceled - file already exists with same content")
	case xmodem.Ok:
		s.storeUpload(path, buf.Bytes())
		s.writeLine("")
	case xmodem.Canceled:
		s.writeLine("ERROR: Upload canceled")
	default:
		s.writeLine("ERROR: Upload failed")
	}
}

// storeUpload implements the upload post-processing rule: text payloads
// are stored verbatim, non-UTF-8 payloads are stored base64-encoded
// under a path suffixed with ".b64" — but the recorded MD5 always
// covers the raw received bytes, never the base64 form, so the digest
// is computed up front and threaded through explicitly.
func (s *Session) storeUpload(path string, raw []byte) {
	sum := md5.Sum(raw)
	digest := hex.EncodeToString(sum[:])

	if utf8.Valid(raw) {
		s.server.Store.WriteWithDigest(path, raw, digest)
		return
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	s.server.Store.WriteWithDigest(path+".b64", []byte(encoded), digest)
}

// handleDownload enters the XMODEM send regime to push a stored file to
// the client.
func (s *Session) handleDownload(path string) {
	path = normalizePath(s.cwd, path)

	f, ok := s.server.Store.Read(path)
	if !ok {
		s.writeLine(fmt.Sprintf("ERROR: File not found: %s", path))
		return
	}

	adapter := ioadapter.NewTCP(s.conn)
	adapter.SetReader(s.reader)

	result := xmodem.Send(context.Background(), adapter, bytes.NewReader(f.Contents), f.MD5,
		xmodem.Mode128, s.server.Retry, s.server.ByteTimeout, &xmodem.Cancel{}, nil, s.logger)

	switch result.Outcome {
	case xmodem.Ok, xmodem.Md5Match:
		s.writeLine("")
	case xmodem.Canceled:
		s.writeLine("ERROR: Download canceled")
	default:
		s.writeLine("ERROR: Download failed")
	}
}
