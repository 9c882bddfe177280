package xmodem

import "github.com/carveratools/millmock/internal/crc"

// header builds the 3-byte <header><seq><~seq> prefix for a data
// block, per spec §3: header(128, s) = [SOH, s, 0xFF-s]; header(8192,
// s) = [STX, s, 0xFF-s].
func header(mode Mode, seq byte) []byte {
	return []byte{mode.header(), seq, 0xFF - seq}
}

// frame right-pads payload to the mode's nominal size with Pad and
// prepends the length prefix (1 byte for Mode128, 2 bytes big-endian
// for Mode8K) encoding len(payload) before padding.
func frame(mode Mode, payload []byte) []byte {
	n := len(payload)
	packetSize := int(mode)
	out := make([]byte, 0, mode.lengthPrefixWidth()+packetSize)
	if mode.lengthPrefixWidth() == 1 {
		out = append(out, byte(n&0xFF))
	} else {
		out = append(out, byte(n>>8), byte(n&0xFF))
	}
	out = append(out, payload...)
	for len(out) < mode.lengthPrefixWidth()+packetSize {
		out = append(out, Pad)
	}
	return out
}

// checksumBytes computes the trailing checksum/CRC for a framed
// payload (length prefix + padded data), per spec §4.B.3: the
// checksum covers the framed payload, never the header.
func checksumBytes(crcMode bool, framed []byte) []byte {
	if crcMode {
		v := crc.XMODEM(framed)
		return []byte{byte(v >> 8), byte(v & 0xFF)}
	}
	return []byte{crc.Checksum(framed)}
}

// crcSize is the trailing checksum width for the given mode.
func crcSize(crcMode bool) int {
	if crcMode {
		return 2
	}
	return 1
}

// verifyChecksum checks the trailing checksum/CRC of data (framed
// payload + checksum bytes) and returns the framed payload with the
// checksum stripped off.
func verifyChecksum(crcMode bool, data []byte) (ok bool, framed []byte) {
	n := crcSize(crcMode)
	if len(data) < n {
		return false, nil
	}
	framed = data[:len(data)-n]
	trailer := data[len(data)-n:]
	if crcMode {
		want := uint16(trailer[0])<<8 | uint16(trailer[1])
		return crc.XMODEM(framed) == want, framed
	}
	return crc.Checksum(framed) == trailer[0], framed
}

// decodeLength reads the length prefix from a verified framed payload
// and returns it along with the payload bytes it covers.
func decodeLength(mode Mode, framed []byte) (n int, payload []byte) {
	if mode.lengthPrefixWidth() == 1 {
		n = int(framed[0])
		payload = framed[1:]
	} else {
		n = int(framed[0])<<8 | int(framed[1])
		payload = framed[2:]
	}
	if n > len(payload) {
		n = len(payload)
	}
	return n, payload[:n]
}
