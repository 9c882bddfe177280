package xmodem

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/carveratools/millmock/pkg/ioadapter"
)

// Send transmits the MD5 block followed by the contents of stream,
// in mode-sized blocks, to a receiver on the other end of adapter.
// It implements spec §4.B.1 verbatim: handshake, then per-block
// ACK/NAK/CAN/timeout handling with a shared retry budget, then EOT.
//
// ctx cancellation is treated the same as an adapter failure: it
// tears the transfer down as Failed without sending an abort sequence
// (the peer is assumed gone, e.g. because the outer session is
// closing). cancel is the cooperative, in-transfer abort flag checked
// at block boundaries; setting it produces a clean CAN x3 shutdown and
// Canceled.
func Send(ctx context.Context, adapter ioadapter.Adapter, stream io.Reader, md5Hash string, mode Mode, retry int, timeout time.Duration, cancel *Cancel, progress Progress, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "xmodem-send")
	if progress == nil {
		progress = NopProgress
	}
	timeout = timeoutOrDefault(timeout)

	crcMode, ok := sendHandshake(ctx, adapter, retry, timeout, logger)
	if ok == Failed || ok == Canceled {
		return Result{Outcome: ok}
	}

	var sequence byte
	var md5Sent bool
	var bytesTransferred uint64
	errorCount := 0
	cancelSeen := false

	for {
		if ctx.Err() != nil {
			return Result{Outcome: Failed, N: bytesTransferred}
		}
		if cancel.take() {
			sendCancelSequence(adapter, timeout)
			logger.Warn("send canceled by local request")
			return Result{Outcome: Canceled, N: bytesTransferred}
		}

		var payload []byte
		var isMd5Block bool
		if !md5Sent && sequence == 0 {
			payload = []byte(md5Hash)
			md5Sent = true
			isMd5Block = true
		} else {
			buf := make([]byte, int(mode))
			n, _ := io.ReadFull(stream, buf)
			if n == 0 {
				break
			}
			payload = buf[:n]
		}

		framed := frame(mode, payload)
		checksum := checksumBytes(crcMode, framed)
		packet := append(append(header(mode, sequence), framed...), checksum...)

		acked := false
		for {
			if _, sent := adapter.Put(packet, timeout); !sent {
				logger.Debug("put failed sending block", "sequence", sequence)
			}
			resp, got := adapter.Get(1, timeout)
			switch {
			case got && resp[0] == ACK:
				acked = true
				errorCount = 0
				if !isMd5Block {
					bytesTransferred += uint64(len(payload))
				}
				progress.OnProgress(bytesTransferred, int(sequence), errorCount)
			case got && resp[0] == CAN:
				if cancelSeen {
					if isMd5Block {
						logger.Info("receiver already has this file, md5 match")
						return Result{Outcome: Md5Match, N: bytesTransferred}
					}
					logger.Warn("peer canceled twice during transfer")
					return Result{Outcome: Failed, N: bytesTransferred}
				}
				cancelSeen = true
				continue
			case got && resp[0] == NAK:
				logger.Debug("block NAKed, retrying", "sequence", sequence)
			default:
				logger.Debug("timeout or unexpected byte awaiting block ack", "sequence", sequence)
			}
			if acked {
				break
			}
			errorCount++
			progress.OnProgress(bytesTransferred, int(sequence), errorCount)
			if errorCount > retry {
				logger.Error("block failed after retries, aborting", "sequence", sequence)
				Abort(adapter, 2, timeout)
				return Result{Outcome: Failed, N: bytesTransferred}
			}
		}

		sequence++
	}

	errorCount = 0
	for {
		adapter.Put([]byte{EOT}, timeout)
		resp, got := adapter.Get(1, timeout)
		if got && resp[0] == ACK {
			logger.Info("send complete", "bytes", bytesTransferred)
			return Result{Outcome: Ok, N: bytesTransferred}
		}
		errorCount++
		if errorCount > retry {
			logger.Error("EOT not acknowledged, aborting")
			Abort(adapter, 2, timeout)
			return Result{Outcome: Failed, N: bytesTransferred}
		}
	}
}

// sendHandshake waits for the receiver's initial C or NAK byte.
func sendHandshake(ctx context.Context, adapter ioadapter.Adapter, retry int, timeout time.Duration, logger *slog.Logger) (crcMode bool, outcome Outcome) {
	errorCount := 0
	cancelSeen := false
	for {
		if ctx.Err() != nil {
			return false, Failed
		}
		b, got := adapter.Get(1, timeout)
		if got {
			switch b[0] {
			case NAK:
				return false, Ok
			case C:
				return true, Ok
			case CAN:
				if cancelSeen {
					logger.Warn("receiver canceled twice at handshake")
					return false, Canceled
				}
				cancelSeen = true
				continue
			case EOT:
				logger.Warn("receiver sent EOT at handshake")
				return false, Failed
			}
		}
		cancelSeen = false
		errorCount++
		if errorCount > retry {
			logger.Error("handshake failed, aborting")
			Abort(adapter, 2, timeout)
			return false, Failed
		}
	}
}

func sendCancelSequence(adapter ioadapter.Adapter, timeout time.Duration) {
	Abort(adapter, 3, timeout)
	for {
		if _, got := adapter.Get(1, timeout); !got {
			return
		}
	}
}

// Abort transmits n CAN bytes, per spec §4.B.4.
func Abort(adapter ioadapter.Adapter, n int, timeout time.Duration) {
	for i := 0; i < n; i++ {
		adapter.Put([]byte{CAN}, timeout)
	}
}
