package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carveratools/millmock/pkg/catalog"
	"github.com/carveratools/millmock/pkg/ioadapter"
	"github.com/carveratools/millmock/pkg/vfs"
	"github.com/carveratools/millmock/pkg/xmodem"
)

const testCatalogJSON = `{
	"host_commands": {
		"upload ": {"response": "", "sends_ok": false},
		"download ": {"response": "", "sends_ok": false}
	},
	"console_commands": {
		"version": {"response": "Mock CNC v1.0", "time_ms": 100, "sends_ok": false}
	},
	"g_codes": {},
	"m_codes": {}
}`

func startTestServer(t *testing.T) (addr string, srv *Server) {
	t.Helper()
	cat, err := catalog.Load([]byte(testCatalogJSON))
	require.NoError(t, err)

	srv = NewServer(cat, vfs.New(), nil)
	srv.IdleTimeout = 300 * time.Millisecond

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go srv.Serve(ln)
	return ln.Addr().String(), srv
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// E1: version command gets a delayed, newline-terminated response.
func TestE1VersionCommand(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("version\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Mock CNC v1.0\n", line)
}

// E2: a second concurrent connection is rejected immediately.
func TestE2ConcurrentConnectionRejected(t *testing.T) {
	addr, _ := startTestServer(t)
	first := dial(t, addr)
	_ = first

	// Give the accept loop a moment to mark the first session active.
	time.Sleep(50 * time.Millisecond)

	second := dial(t, addr)
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Server busy, only one connection allowed\n", line)
}

// E3: an idle client is disconnected after IdleTimeout.
func TestE3IdleTimeoutCloses(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err) // EOF once the server times the idle session out
}

// E4: a 5000-byte XMODEM-CRC upload completes and the server replies with
// an empty line.
func TestE4UploadStoresFile(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("upload /test/a.txt\n"))
	require.NoError(t, err)

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	sum := md5.Sum(payload)
	wantMD5 := hex.EncodeToString(sum[:])

	result := xmodem.Send(context.Background(), ioadapter.NewTCP(conn), bytes.NewReader(payload), wantMD5,
		xmodem.Mode128, 10, time.Second, &xmodem.Cancel{}, nil, nil)
	require.Equal(t, xmodem.Ok, result.Outcome)
	require.Equal(t, uint64(5000), result.N)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", line)
}

// E5: downloading an already-current file short-circuits with Md5Match.
func TestE5DownloadMd5Match(t *testing.T) {
	addr, srv := startTestServer(t)
	contents := []byte("hello from the mill")
	f := srv.Store.Write("/test/a.txt", contents)

	conn := dial(t, addr)
	_, err := conn.Write([]byte("download /test/a.txt\n"))
	require.NoError(t, err)

	result := xmodem.Receive(context.Background(), ioadapter.NewTCP(conn), io.Discard, f.MD5, true,
		10, time.Second, 50*time.Millisecond, &xmodem.Cancel{}, nil, nil)
	assert.Equal(t, xmodem.Md5Match, result.Outcome)
}

// E5b: downloading a missing file replies with an error and never enters
// the XMODEM regime.
func TestE5bDownloadMissingFile(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("download /nope.txt\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR: File not found: /nope.txt\n", line)
}

// E6: cd/pwd round trip, including relative ".." resolution.
func TestE6CdPwd(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)
	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, err := conn.Write([]byte("cd /foo\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", line)

	_, err = conn.Write([]byte("pwd\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "/foo\n", line)

	_, err = conn.Write([]byte("cd ../bar\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", line)

	_, err = conn.Write([]byte("pwd\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "/bar\n", line)
}

func TestUnknownCommand(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("frobnicate\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Unknown command\n", line)
}

func TestTimeSetAndQuery(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)
	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, err := conn.Write([]byte("time = 1000\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", line)

	_, err = conn.Write([]byte("time\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.NotEqual(t, "ERROR: Time not initialized\n", line)
}

func TestTimeQueryBeforeSetIsError(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("time\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Time not initialized\n", line)
}
