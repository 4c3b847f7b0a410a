package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputFrameWireShape(t *testing.T) {
	data, err := InputFrame("ls -la\r").Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"i","d":"ls -la\r"}`, string(data))
}

func TestResizeFrameWireShape(t *testing.T) {
	data, err := ResizeFrame(120, 40).Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"r","c":120,"r":40}`, string(data))
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"t":"i","d":"\u0003"}`))
	require.NoError(t, err)
	assert.True(t, f.IsInput())
	assert.Equal(t, "\x03", f.D)

	f, err = DecodeFrame([]byte(`{"t":"r","c":80,"r":24}`))
	require.NoError(t, err)
	assert.True(t, f.IsResize())
	assert.Equal(t, 80, f.C)
	assert.Equal(t, 24, f.R)

	_, err = DecodeFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestFrameKindPredicatesAreExclusive(t *testing.T) {
	in := InputFrame("x")
	assert.True(t, in.IsInput())
	assert.False(t, in.IsResize())

	rs := ResizeFrame(1, 1)
	assert.True(t, rs.IsResize())
	assert.False(t, rs.IsInput())
}
