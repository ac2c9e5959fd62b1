package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
)

const sseKeepaliveInterval = 10 * time.Second

// handleStreamTransfers streams transfer events as server-sent events.
// If the address path parameter is empty, transfers from every sender are
// streamed. Otherwise only transfers sent from that address.
func handleStreamTransfers(sub TransferSubscriber, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		walletDesc := "all wallets"
		if address != "" {
			pk, err := solana.ParsePublicKey(address)
			if err != nil {
				writeAPIError(w, r, invalidPublicKey(address, err), nil, logger)
				return
			}
			address = pk.String()
			walletDesc = address
		}

		rc := http.NewResponseController(w)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet", walletDesc,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", walletDesc)
		if err := rc.Flush(); err != nil {
			logger.ErrorContext(r.Context(), "streaming unsupported", "error", err)
			return
		}

		events := make(chan *natspkg.TransferEvent, 10)
		subErr := make(chan error, 1)
		go func() {
			subErr <- sub.SubscribeTransfers(r.Context(), address, func(e *natspkg.TransferEvent) error {
				select {
				case events <- e:
					return nil
				case <-r.Context().Done():
					return r.Context().Err()
				}
			})
		}()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				_ = rc.Flush()

			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: transfer\ndata: %s\n\n", data)
				_ = rc.Flush()

				logger.DebugContext(r.Context(), "sent transfer event",
					"wallet", walletDesc,
					"signature", event.Signature,
					"status", event.Status,
				)

			case err := <-subErr:
				if err != nil && r.Context().Err() == nil {
					logger.ErrorContext(r.Context(), "transfer subscription failed",
						"wallet", walletDesc,
						"error", err,
					)
					fmt.Fprintf(w, "event: error\ndata: {\"error\":\"subscription failed\"}\n\n")
					_ = rc.Flush()
				}
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet", walletDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
