package sse_test

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketricsolutions/sketricgen-sdk/internal/sse"
)

func TestDecodeOneEventNoSpace(t *testing.T) {
	input := `event:output
id:123abc
data:giraffe

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "123abc", e.ID)
	assert.Equal(t, "giraffe", e.Data)
}

func TestDecodeOneEventWithSpace(t *testing.T) {
	input := `event: output
id: 123abc
data:   giraffe

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "123abc", e.ID)
	assert.Equal(t, "giraffe", e.Data)
}

func TestDecodeOneEventMultipleData(t *testing.T) {
	input := `event:output
data:giraffe
data:rhino
data:wombat

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "giraffe\nrhino\nwombat", e.Data)
}

func TestDecodeOneEventHugeData(t *testing.T) {
	// this test is mainly to make sure we're not constrained by the
	// bufio.Reader buffer size
	input := fmt.Sprintf(`event:output
data:%s

`, strings.Repeat("0123456789abcdef", 1_000_000))
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, 16_000_000, len(e.Data))
}

func TestDecodeManyEvents(t *testing.T) {
	input := `event:output
id:alpha1
data:giraffe

event:output
id:bravo2
data:rhino

event:output
id:gamma3
data:pine marten

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "alpha1", e.ID)
	assert.Equal(t, "giraffe", e.Data)

	e, err = d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "bravo2", e.ID)
	assert.Equal(t, "rhino", e.Data)

	e, err = d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "gamma3", e.ID)
	assert.Equal(t, "pine marten", e.Data)

	_, err = d.Next()

	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeDefaultsEventType(t *testing.T) {
	input := `data:giraffe

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "message", e.Type)
	assert.Equal(t, "giraffe", e.Data)
}

func TestDecodeUnterminatedFrameFlushedAtEOF(t *testing.T) {
	// no blank line after the last frame, and no trailing newline at all
	input := "event:output\ndata:giraffe"
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "giraffe", e.Data)

	_, err = d.Next()

	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeEmptyInput(t *testing.T) {
	d := sse.NewDecoder(strings.NewReader(""))

	_, err := d.Next()

	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeCommentsAndBlanksOnly(t *testing.T) {
	input := `: heartbeat

: hi

`
	d := sse.NewDecoder(strings.NewReader(input))

	_, err := d.Next()

	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	input := `retry:1000
whatever
data:giraffe

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "message", e.Type)
	assert.Equal(t, "giraffe", e.Data)
}

func TestDecodeStripsTrailingWhitespace(t *testing.T) {
	input := "event:output \t\r\ndata:giraffe\r\n\r\n"
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "output", e.Type)
	assert.Equal(t, "giraffe", e.Data)
}

func TestDecodeEventWithoutData(t *testing.T) {
	input := `event:done

`
	d := sse.NewDecoder(strings.NewReader(input))

	e, err := d.Next()

	require.NoError(t, err)

	assert.Equal(t, "done", e.Type)
	assert.Equal(t, "", e.Data)

	_, err = d.Next()

	assert.ErrorIs(t, err, io.EOF)
}
