package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	body := Body{
		FieldWorker: 3,
		FieldTask:   42,
		FieldArgs:   []any{1, "two", 3.0},
		FieldKwargs: map[string]any{"n": 10},
	}

	encoded, err := EncodeMessage(KindSubmitTask, body)
	require.NoError(t, err)

	kind, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, KindSubmitTask, kind)
	require.EqualValues(t, 3, decoded[FieldWorker])
	require.EqualValues(t, 42, decoded[FieldTask])
}

func TestResponseRoundTrip(t *testing.T) {
	resp := OK(Body{FieldValue: "hello"})
	encoded, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(encoded)
	require.NoError(t, err)
	require.True(t, decoded.Ok)
	require.Equal(t, "hello", decoded.Body[FieldValue])
}

func TestFailResponse(t *testing.T) {
	resp := Fail(ErrBoom)
	encoded, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(encoded)
	require.NoError(t, err)
	require.False(t, decoded.Ok)
	require.Equal(t, "boom", decoded.Error)
}

var ErrBoom = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestRequestReplyOnlyOnce(t *testing.T) {
	f := NewFuture()
	req := &Request{Kind: KindGetResult, FutureReply: f}

	require.False(t, req.ReplySent())
	require.NoError(t, req.Reply(OK(Body{FieldValue: 1})))
	require.True(t, req.ReplySent())

	// second reply is a no-op, not a second send
	require.NoError(t, req.Reply(OK(Body{FieldValue: 2})))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := f.Await(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, resp.Body[FieldValue])
}

func TestFutureAwaitTimeout(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.Error(t, err)
}
