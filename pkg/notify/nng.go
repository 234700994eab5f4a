package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	"github.com/dd0wney/cluso-deconflict/pkg/model"

	// Register transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// NNGTopic prefixes every published message so subscribers can filter on it.
const NNGTopic = "CONFLICT:"

// NNGReporter publishes JSON conflict reports on a PUB socket. Subscribers
// dial the listen address and subscribe to NNGTopic.
type NNGReporter struct {
	addr string
	sock mangos.Socket
	mu   sync.Mutex
}

// NewNNGReporter binds a PUB socket to addr (e.g. "tcp://*:9095").
func NewNNGReporter(addr string) (*NNGReporter, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to bind PUB socket to %s: %w", addr, err)
	}
	return &NNGReporter{addr: addr, sock: sock}, nil
}

func (r *NNGReporter) Name() string { return "nng" }

// Addr returns the address the socket listens on
func (r *NNGReporter) Addr() string { return r.addr }

func (r *NNGReporter) Report(ctx context.Context, report model.ConflictReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode conflict report: %w", err)
	}
	msg := append([]byte(NNGTopic), payload...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sock.Send(msg); err != nil {
		return fmt.Errorf("failed to publish conflict report: %w", err)
	}
	return nil
}

// Close closes the PUB socket
func (r *NNGReporter) Close() error {
	return r.sock.Close()
}

// DecodeNNGMessage strips the topic prefix and decodes the report.
func DecodeNNGMessage(msg []byte) (model.ConflictReport, error) {
	var report model.ConflictReport
	if len(msg) < len(NNGTopic) || string(msg[:len(NNGTopic)]) != NNGTopic {
		return report, fmt.Errorf("message does not start with %q", NNGTopic)
	}
	if err := json.Unmarshal(msg[len(NNGTopic):], &report); err != nil {
		return report, fmt.Errorf("failed to decode conflict report: %w", err)
	}
	return report, nil
}
