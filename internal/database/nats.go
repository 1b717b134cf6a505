package database

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// ConnectNATS connects to the NATS server and opens a JetStream context for
// the durable job queue. An empty URL returns nils: the dispatcher then runs
// in its degraded fire-and-forget mode.
func ConnectNATS(url string) (*nats.Conn, nats.JetStreamContext, error) {
	if url == "" {
		return nil, nil, nil
	}

	conn, err := nats.Connect(url, nats.Name("gema-judge"))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("unable to open jetstream context: %w", err)
	}

	return conn, js, nil
}
