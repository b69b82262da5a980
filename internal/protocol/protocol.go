// Package protocol defines the request/response schema the host speaks and
// its msgpack encoding. Messages travel as length-prefixed frames (frame.go);
// requests are tagged by a lowercase "op" field and are fully
// self-describing, responses are single-key {"ok": ...} / {"err": ...} maps.
package protocol

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Operation tags. The wire convention is lowercase; DecodeRequest normalizes.
const (
	OpSync     = "sync"
	OpFiles    = "files"
	OpRead     = "read"
	OpHead     = "head"
	OpCheckout = "checkout"
	OpLsRemote = "lsremote"
)

// Request is the union of all request variants. Which fields are meaningful
// depends on Op; unset fields decode to zero values.
type Request struct {
	Op      string `msgpack:"op"`
	URL     string `msgpack:"url"`
	Branch  string `msgpack:"branch"`
	Path    string `msgpack:"path"`
	Depth   int    `msgpack:"depth"`
	Subpath string `msgpack:"subpath"`
	File    string `msgpack:"file"`
	SHA     string `msgpack:"sha"`
}

// DecodeRequest decodes one request payload. A payload that does not decode
// is a framing-level failure: the caller must tear down the connection, not
// answer the request.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}

	if req.Op == "" {
		return Request{}, fmt.Errorf("decode request: missing op field")
	}
	req.Op = strings.ToLower(req.Op)

	return req, nil
}

// EncodeOK encodes a success envelope. The value is a commit SHA or base64
// content (string), a file listing ([]string), or a CommitInfo-shaped struct.
func EncodeOK(v any) ([]byte, error) {
	return msgpack.Marshal(map[string]any{"ok": v})
}

// EncodeErr encodes a failure envelope carrying the flat error message.
func EncodeErr(msg string) ([]byte, error) {
	return msgpack.Marshal(map[string]string{"err": msg})
}
