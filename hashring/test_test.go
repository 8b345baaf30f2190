package hashring

import (
	"bytes"
	"context"
	"hash"
	"log/slog"
	"testing"

	"github.com/cespare/xxhash/v2"
)

// setupDigest makes r use fixed hash values for the given names. All other
// names are hashed with xxhash.
func setupDigest(t testing.TB, r *Ring, values map[string]uint64) {
	r.Hash = func() hash.Hash64 {
		return &hash64{
			t:      t,
			values: values,
		}
	}
}

type hash64 struct {
	t      testing.TB
	values map[string]uint64
	buf    bytes.Buffer
}

func (h *hash64) Write(p []byte) (int, error) {
	return h.buf.Write(p)
}

func (h *hash64) Sum(b []byte) []byte {
	panic("hashring: hash Sum() must not be called")
}

func (h *hash64) Reset() {
	h.buf.Reset()
}

func (h *hash64) Size() int {
	return 8
}

func (h *hash64) BlockSize() int {
	return 1
}

func (h *hash64) Sum64() uint64 {
	v, has := h.values[h.buf.String()]
	if has {
		h.t.Logf("using digest value for %#q: %d", h.buf.String(), v)
		return v
	}
	return xxhash.Sum64(h.buf.Bytes())
}

// newTestLogger returns a logger passing message of every record to fn.
func newTestLogger(fn func(string)) *slog.Logger {
	return slog.New(funcHandler{fn})
}

type funcHandler struct {
	fn func(string)
}

func (h funcHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h funcHandler) Handle(_ context.Context, r slog.Record) error {
	h.fn(r.Message)
	return nil
}

func (h funcHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h funcHandler) WithGroup(string) slog.Handler {
	return h
}
