package xmodem

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/carveratools/millmock/pkg/ioadapter"
)

// Receive accepts an XMODEM-CRC transfer from a sender on the other
// end of adapter, writing data blocks to sink, per spec §4.B.2.
//
// preferCRC controls the handshake: for the first retry/2 attempts the
// receiver requests CRC mode (byte C); thereafter it downgrades to
// checksum mode (NAK) for the remainder of the retry budget — this
// exact ratio is a fixed property of the reference implementation
// (spec §9 Open Questions), not an alternation.
//
// expectedMD5, when non-empty, is compared against the sender's
// sequence-0 MD5 block; on a match Receive short-circuits with
// Outcome Md5Match without writing anything to sink.
func Receive(ctx context.Context, adapter ioadapter.Adapter, sink io.Writer, expectedMD5 string, preferCRC bool, retry int, timeout, delay time.Duration, cancel *Cancel, progress Progress, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "xmodem-receive")
	if progress == nil {
		progress = NopProgress
	}
	timeout = timeoutOrDefault(timeout)
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	mode, crcMode, outcome := receiveHandshake(ctx, adapter, preferCRC, retry, timeout, delay, logger)
	if outcome != Ok {
		return Result{Outcome: outcome}
	}

	var (
		sequence    byte
		md5Received bool
		income      uint64
		errorCount  int
		cancelSeen  bool
		retrans     = retry + 1
		havePending = true // handshake already consumed the first header byte
		pending     = mode.header()
	)

	for {
		if ctx.Err() != nil {
			return Result{Outcome: Failed, N: income}
		}
		if cancel.take() {
			Abort(adapter, 3, timeout)
			drain(adapter, timeout)
			logger.Warn("receive canceled by local request")
			return Result{Outcome: Canceled, N: income}
		}

		// Wait for the next block header (SOH/STX), EOT, or CAN. A byte
		// already read at a header position is examined first.
		for {
			b, got := []byte{pending}, havePending
			if !havePending {
				b, got = adapter.Get(1, timeout)
			}
			if got && (b[0] == SOH || b[0] == STX) {
				break
			}
			havePending = false
			switch {
			case got && b[0] == EOT:
				adapter.Put([]byte{ACK}, timeout)
				logger.Info("receive complete", "bytes", income)
				return Result{Outcome: Ok, N: income}
			case got && b[0] == CAN:
				if cancelSeen {
					logger.Warn("sender canceled twice at block boundary")
					return Result{Outcome: Canceled, N: income}
				}
				cancelSeen = true
			case !got:
				errorCount++
				if errorCount > retry {
					logger.Error("error budget exhausted waiting for header")
					Abort(adapter, 2, timeout)
					return Result{Outcome: Failed, N: income}
				}
				// Reference implementation uses a short fixed
				// retry delay here rather than the full timeout.
				if b2, got2 := adapter.Get(1, 500*time.Millisecond); got2 {
					pending, havePending = b2[0], true
				}
			default:
				errorCount++
				if errorCount > retry {
					Abort(adapter, 2, timeout)
					return Result{Outcome: Failed, N: income}
				}
				drain(adapter, timeout)
				adapter.Put([]byte{NAK}, timeout)
				if b2, got2 := adapter.Get(1, timeout); got2 {
					pending, havePending = b2[0], true
				}
			}
		}

		errorCount = 0
		cancelSeen = false
		havePending = false

		seq1, got1 := adapter.Get(1, timeout)
		var seq2 []byte
		var got2 bool
		if got1 {
			seq2, got2 = adapter.Get(1, timeout)
		}

		seqMatch := got1 && got2 && seq1[0] == sequence && (0xFF-seq2[0]) == sequence

		var valid bool
		var framed []byte
		if seqMatch {
			expected := mode.lengthPrefixWidth() + int(mode) + crcSize(crcMode)
			data, got := adapter.Get(expected, timeout)
			if got {
				valid, framed = verifyChecksum(crcMode, data)
			}
		} else {
			logger.Warn("sequence mismatch, discarding block", "expected", sequence)
			discardLen := mode.lengthPrefixWidth() + int(mode) + crcSize(crcMode)
			adapter.Get(discardLen, timeout)
		}

		if seqMatch && valid {
			retrans = retry + 1
			if sequence == 0 && !md5Received {
				md5Received = true
				// The MD5 block is framed like a data block: the
				// 32-byte ASCII hex digest follows the length prefix.
				md5Bytes := framed[mode.lengthPrefixWidth() : mode.lengthPrefixWidth()+32]
				if expectedMD5 != "" && string(md5Bytes) == expectedMD5 {
					logger.Info("md5 match, canceling transfer")
					Abort(adapter, 3, timeout)
					drain(adapter, timeout)
					return Result{Outcome: Md5Match, N: 0}
				}
			} else {
				n, payload := decodeLength(mode, framed)
				sink.Write(payload[:n])
				income += uint64(n)
				progress.OnProgress(income, int(sequence), 0)
			}
			adapter.Put([]byte{ACK}, timeout)
			sequence++
			if b, got := adapter.Get(1, timeout); got {
				pending, havePending = b[0], true
			}
			continue
		}

		logger.Warn("purge and request retransmission")
		drain(adapter, timeout)
		retrans--
		if retrans <= 0 {
			logger.Error("retransmission budget exhausted")
			Abort(adapter, 2, timeout)
			return Result{Outcome: Failed, N: income}
		}
		adapter.Put([]byte{NAK}, timeout)
		if b, got := adapter.Get(1, timeout); got {
			pending, havePending = b[0], true
		}
	}
}

func receiveHandshake(ctx context.Context, adapter ioadapter.Adapter, preferCRC bool, retry int, timeout, delay time.Duration, logger *slog.Logger) (mode Mode, crcMode bool, outcome Outcome) {
	errorCount := 0
	cancelSeen := false
	crcMode = preferCRC

	for {
		if ctx.Err() != nil {
			return 0, false, Failed
		}
		if errorCount >= retry {
			logger.Error("handshake failed, aborting")
			Abort(adapter, 2, timeout)
			return 0, false, Failed
		}
		if crcMode && errorCount < retry/2 {
			if _, ok := adapter.Put([]byte{C}, timeout); !ok {
				time.Sleep(delay)
				errorCount++
			}
		} else {
			crcMode = false
			if _, ok := adapter.Put([]byte{NAK}, timeout); !ok {
				time.Sleep(delay)
				errorCount++
			}
		}

		b, got := adapter.Get(1, timeout)
		switch {
		case !got:
			errorCount++
		case b[0] == SOH:
			return Mode128, crcMode, Ok
		case b[0] == STX:
			return Mode8K, crcMode, Ok
		case b[0] == CAN:
			if cancelSeen {
				logger.Warn("sender canceled twice at handshake")
				return 0, false, Canceled
			}
			cancelSeen = true
		default:
			errorCount++
		}
	}
}

func drain(adapter ioadapter.Adapter, timeout time.Duration) {
	for {
		if _, got := adapter.Get(1, timeout); !got {
			return
		}
	}
}
