package util

import (
	"testing"
	"time"

	"github.com/chorusflow/chorus/model"
	"github.com/stretchr/testify/require"
)

func TestJsonEncDec(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"round trips a value":             testEncDecRoundTrip,
		"decode error is a storage error": testDecodeErrorIsStorageError,
		"encode error is a storage error": testEncodeErrorIsStorageError,
	} {
		t.Run(scenario, fn)
	}
}

func testEncDecRoundTrip(t *testing.T) {
	encdec := NewJsonEncoderDecoder[model.Event]()
	ev := model.Event{
		Id:        "ev-1",
		Type:      model.EVENT_STEP_COMPLETED,
		Name:      "fetch",
		Payload:   map[string]any{"action_id": "fetch"},
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	data, err := encdec.Encode(ev)
	require.NoError(t, err)
	got, err := encdec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, ev, *got)
}

func testDecodeErrorIsStorageError(t *testing.T) {
	encdec := NewJsonEncoderDecoder[model.Event]()
	_, err := encdec.Decode([]byte("{not json"))
	var se model.StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "decode record", se.Op)
}

func testEncodeErrorIsStorageError(t *testing.T) {
	encdec := NewJsonEncoderDecoder[any]()
	_, err := encdec.Encode(make(chan int))
	var se model.StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "encode record", se.Op)
}
