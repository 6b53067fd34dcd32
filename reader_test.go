package shuttle

import (
	"bytes"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
)

func readEnvelopes(t *testing.T, input []byte) ([]Envelope, *readCloser, error) {
	t.Helper()
	outbox := make(chan Envelope, 100)
	rc := &readCloser{Reader: bytes.NewReader(input)}
	err := NewReader(outbox, metrics.NewRegistry()).Read(rc)
	close(outbox)

	var envs []Envelope
	for e := range outbox {
		envs = append(envs, e)
	}
	return envs, rc, err
}

func TestReaderSplitsEnvelopes(t *testing.T) {
	one := batchOf(kv("msg", "one"))
	two := batchOf(kv("msg", "two", "n", 2))
	input := append(append([]byte(nil), one...), two...)

	envs, rc, err := readEnvelopes(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !rc.closed {
		t.Error("expected input to be closed")
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	if !bytes.Equal(envs[0].raw, one) || !bytes.Equal(envs[1].raw, two) {
		t.Errorf("unexpected envelopes: %x, %x", envs[0].raw, envs[1].raw)
	}
	if envs[1].Len() != len(two) {
		t.Errorf("expected length %d, got %d", len(two), envs[1].Len())
	}
}

func TestReaderEmptyInput(t *testing.T) {
	envs, _, err := readEnvelopes(t, nil)
	if err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	if len(envs) != 0 {
		t.Errorf("expected no envelopes, got %d", len(envs))
	}
}

func TestReaderTruncatedInput(t *testing.T) {
	one := batchOf(kv("msg", "one"))
	two := batchOf(kv("msg", "two"))
	input := append(append([]byte(nil), one...), two[:len(two)-3]...)

	envs, _, err := readEnvelopes(t, input)
	if err == nil {
		t.Error("expected an error for a truncated stream")
	}
	if len(envs) != 1 {
		t.Errorf("expected 1 envelope before the error, got %d", len(envs))
	}
}
