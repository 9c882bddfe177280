package session

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/carveratools/millmock/pkg/catalog"
)

// Session is the per-connection state: the peer's current working
// directory and the I/O plumbing needed to read lines and write
// responses.
type Session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	cwd    string
	logger *slog.Logger
}

// run drives WAIT_LINE -> DISPATCH -> RESPOND -> WAIT_LINE until the
// peer closes the connection, goes idle past IdleTimeout, or a fatal
// I/O error occurs.
func (s *Session) run() {
	for {
		line, err := s.readLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		s.logger.Debug("received command", "line", line)
		s.dispatch(line)
	}
}

func (s *Session) readLine() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.server.IdleTimeout)); err != nil {
		return "", err
	}
	raw, err := s.reader.ReadString('\n')
	if err != nil {
		if raw == "" {
			return "", err
		}
	}
	return strings.TrimSpace(raw), nil
}

// dispatch routes one command line to its handler. Time and filesystem
// commands are engine-level, not catalog data, so they're recognized
// ahead of catalog resolution. Everything else, including upload and
// download, goes through catalog.Resolve; upload/download are ordinary
// host-command entries whose resolved key happens to trigger XMODEM
// handover instead of a canned response.
func (s *Session) dispatch(line string) {
	switch {
	case isTimeCommand(line):
		s.handleTime(line)
		return
	case isFSCommand(line):
		s.handleFS(line)
		return
	}

	key, desc, ok := catalog.Resolve(s.server.Catalog, line)
	if !ok {
		s.logger.Warn("unknown command", "line", line)
		s.writeLine("ERROR: Unknown command")
		return
	}
	s.logger.Debug("resolved command", "key", key, "category", desc.Category.String())

	if desc.Category == catalog.CategoryHost {
		switch key {
		case s.server.UploadVerb:
			s.handleUpload(strings.TrimSpace(line[len(key):]))
			return
		case s.server.DownloadVerb:
			s.handleDownload(strings.TrimSpace(line[len(key):]))
			return
		}
	}

	s.respond(desc.Response, desc.TimeMs, desc.SendsOK)
}

// respond implements the think-time + response + optional "ok" sequence
// common to every catalog-driven reply.
func (s *Session) respond(response string, timeMs int, sendsOK bool) {
	delay := timeMs
	if delay < 100 {
		delay = 100
	}
	time.Sleep(time.Duration(delay) * time.Millisecond)
	s.writeLine(response)
	if sendsOK {
		s.writeLine("ok")
	}
}

func (s *Session) writeLine(line string) {
	if _, err := fmt.Fprintf(s.conn, "%s\n", line); err != nil {
		s.logger.Debug("write failed", "err", err)
	}
}

func isTimeCommand(line string) bool {
	lower := strings.ToLower(line)
	return lower == "time" || strings.HasPrefix(lower, "time ") || strings.HasPrefix(lower, "time=")
}

func (s *Session) handleTime(line string) {
	rest := strings.TrimSpace(line[len("time"):])

	if rest == "" {
		epoch, ok := s.server.clock.now()
		if !ok {
			s.respond("ERROR: Time not initialized", 0, false)
			return
		}
		s.respond(strconv.FormatInt(epoch, 10), 0, false)
		return
	}

	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimSpace(rest)
	epoch, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || !s.server.clock.set(epoch) {
		s.respond("ERROR: Invalid time", 0, false)
		return
	}
	s.respond("", 0, false)
}

var fsVerbs = map[string]bool{
	"ls": true, "pwd": true, "cd": true, "cat": true, "mv": true, "rm": true,
}

func isFSCommand(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && fsVerbs[strings.ToLower(fields[0])]
}

func (s *Session) handleFS(line string) {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "pwd":
		s.respond(s.cwd, 0, false)
	case "cd":
		if len(args) < 1 {
			s.respond("ERROR: cd requires a path", 0, false)
			return
		}
		s.cwd = normalizePath(s.cwd, args[0])
		s.respond("", 0, false)
	case "ls":
		s.respond(s.list(args), 0, false)
	case "cat":
		s.respond(s.cat(args), 0, false)
	case "mv":
		s.respond(s.move(args), 0, false)
	case "rm":
		s.respond(s.remove(args), 0, false)
	}
}

func (s *Session) list(args []string) string {
	showSize := false
	var target string
	for _, a := range args {
		if a == "-s" {
			showSize = true
			continue
		}
		target = a
	}
	path := s.cwd
	if target != "" {
		path = normalizePath(s.cwd, target)
	}

	entries := s.server.Store.ListDirectory(path)
	names := make([]string, 0, len(entries))
	for _, f := range entries {
		name := strings.TrimPrefix(f.Path, path+"/")
		if showSize {
			name = fmt.Sprintf("%s:%d", name, f.Size)
		}
		names = append(names, name)
	}
	return strings.Join(names, " ")
}

func (s *Session) cat(args []string) string {
	if len(args) < 1 {
		return "ERROR: cat requires a path"
	}
	path := normalizePath(s.cwd, args[0])
	f, ok := s.server.Store.Read(path)
	if !ok {
		return fmt.Sprintf("ERROR: File not found: %s", path)
	}
	content := string(f.Contents)
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n >= 0 && n < len(content) {
			content = content[:n]
		}
	}
	return content
}

func (s *Session) move(args []string) string {
	if len(args) < 2 {
		return "ERROR: mv requires source and destination"
	}
	src := normalizePath(s.cwd, args[0])
	dst := normalizePath(s.cwd, args[1])
	if !s.server.Store.Move(src, dst) {
		return fmt.Sprintf("ERROR: File not found: %s", src)
	}
	return ""
}

func (s *Session) remove(args []string) string {
	if len(args) < 1 {
		return "ERROR: rm requires a path"
	}
	path := normalizePath(s.cwd, args[0])
	if !s.server.Store.Delete(path) {
		return fmt.Sprintf("ERROR: File not found: %s", path)
	}
	return ""
}
