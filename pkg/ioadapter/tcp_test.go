package ioadapter

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPAdapterGetPutRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := NewTCP(server)
	b := NewTCP(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		n, ok := b.Put([]byte("hello"), time.Second)
		assert.True(t, ok)
		assert.Equal(t, 5, n)
	}()

	data, ok := a.Get(5, time.Second)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
	<-done
}

func TestTCPAdapterGetTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := NewTCP(server)
	data, ok := a.Get(1, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestTCPAdapterGetShortReadIsFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := NewTCP(server)
	b := NewTCP(client)

	go func() {
		b.Put([]byte("ab"), time.Second)
		client.Close()
	}()

	data, ok := a.Get(5, time.Second)
	assert.False(t, ok)
	assert.Nil(t, data)
}

// TestTCPAdapterSetReaderConsumesBufferedBytes verifies Get reads from
// whatever reader was last handed to SetReader, not always the raw
// conn, so bytes already buffered ahead of a line read aren't lost at
// the moment a session hands its stream to the XMODEM engine.
func TestTCPAdapterSetReaderConsumesBufferedBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("upload foo\nXY"))
	}()

	buffered := bufio.NewReader(server)
	line, err := buffered.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "upload foo\n", line)

	a := NewTCP(server)
	a.SetReader(buffered)

	data, ok := a.Get(2, time.Second)
	require.True(t, ok)
	assert.Equal(t, []byte("XY"), data)
}

func TestTCPAdapterPutAfterCloseFails(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	a := NewTCP(client)
	n, ok := a.Put([]byte("x"), time.Second)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
}
