package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXMODEMEmpty(t *testing.T) {
	assert.EqualValues(t, 0x0000, XMODEM(nil))
}

func TestXMODEMHello(t *testing.T) {
	assert.EqualValues(t, 0xC362, XMODEM([]byte("hello")))
}

func TestSingleByte(t *testing.T) {
	var c CRC16
	c.Single(10)
	assert.EqualValues(t, 0xA14A, c)
}

func TestBlockMatchesSingle(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	var byByte CRC16
	for _, b := range data {
		byByte.Single(b)
	}
	assert.EqualValues(t, byByte, XMODEM(data))
}

func TestChecksumSingleByte(t *testing.T) {
	for b := 0; b < 256; b++ {
		assert.EqualValues(t, byte(b), Checksum([]byte{byte(b)}))
	}
}

func TestChecksumModSum(t *testing.T) {
	data := []byte("some arbitrary payload bytes \x00\x1a\xff")
	var want int
	for _, b := range data {
		want += int(b)
	}
	assert.EqualValues(t, byte(want%256), Checksum(data))
}
