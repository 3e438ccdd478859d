package p2p

import (
	"encoding/json"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
)

// Request/response protocols exchange one JSON document each way over a
// fresh stream.

// readJSON decodes one document of at most limit bytes from s, giving up
// after timeout.
func readJSON(s network.Stream, limit int64, timeout time.Duration, v interface{}) error {
	_ = s.SetReadDeadline(time.Now().Add(timeout))
	return json.NewDecoder(io.LimitReader(s, limit)).Decode(v)
}

// writeJSON encodes v to s.
func writeJSON(s network.Stream, v interface{}) error {
	return json.NewEncoder(s).Encode(v)
}

// request writes req, half-closes s and reads the reply into resp.
func request(s network.Stream, req interface{}, limit int64, timeout time.Duration, resp interface{}) error {
	if req != nil {
		if err := writeJSON(s, req); err != nil {
			return err
		}
	}
	s.CloseWrite()
	return readJSON(s, limit, timeout, resp)
}
