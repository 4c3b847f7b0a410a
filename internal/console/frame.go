package console

import "encoding/json"

// Frame is the client-to-server wire unit. Input carries raw keystroke
// bytes; resize carries the terminal dimensions. Server-to-client traffic
// is raw text with no envelope, so there is no server frame type.
type Frame struct {
	T string `json:"t"`
	D string `json:"d,omitempty"`
	C int    `json:"c,omitempty"`
	R int    `json:"r,omitempty"`
}

const (
	frameInput  = "i"
	frameResize = "r"
)

// InputFrame builds an input frame carrying raw keystroke bytes.
func InputFrame(data string) Frame {
	return Frame{T: frameInput, D: data}
}

// ResizeFrame builds a resize frame for the given dimensions.
func ResizeFrame(cols, rows int) Frame {
	return Frame{T: frameResize, C: cols, R: rows}
}

// IsInput reports whether this is an input frame.
func (f Frame) IsInput() bool { return f.T == frameInput }

// IsResize reports whether this is a resize frame.
func (f Frame) IsResize() bool { return f.T == frameResize }

// Encode marshals the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a client frame off the wire. Used by the dev server.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
