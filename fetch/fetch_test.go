package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func rangeHandler(payload []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := r.Header.Get("Range")
		if !strings.HasPrefix(spec, "bytes=") {
			w.WriteHeader(http.StatusOK)
			//nolint:errcheck
			w.Write(payload)
			return
		}
		parts := strings.SplitN(strings.TrimPrefix(spec, "bytes="), "-", 2)
		begin, _ := strconv.Atoi(parts[0])
		end, _ := strconv.Atoi(parts[1])
		w.WriteHeader(http.StatusPartialContent)
		//nolint:errcheck
		w.Write(payload[begin : end+1])
	}
}

func TestHTTPRangeGetterPartialContent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	payload := []byte("0123456789abcdef")
	srv := httptest.NewServer(rangeHandler(payload))
	defer srv.Close()

	g := NewHTTPRangeGetter(srv.URL, srv.Client(), logger)
	got, err := g.GetRange(context.Background(), 4, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(got), test.ShouldEqual, "456789")

	_, err = g.GetRange(context.Background(), 10, 10)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHTTPRangeGetterFullBodyFallback(t *testing.T) {
	logger := golog.NewTestLogger(t)
	payload := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// server that ignores the Range header entirely
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck
		w.Write(payload)
	}))
	defer srv.Close()

	g := NewHTTPRangeGetter(srv.URL, srv.Client(), logger)
	got, err := g.GetRange(context.Background(), 4, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(got), test.ShouldEqual, "456789")

	_, err = g.GetRange(context.Background(), 4, 100)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHTTPRangeGetterErrorStatus(t *testing.T) {
	logger := golog.NewTestLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewHTTPRangeGetter(srv.URL, srv.Client(), logger)
	_, err := g.GetRange(context.Background(), 0, 4)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "status 500")
}

func TestBytesGetter(t *testing.T) {
	g := NewBytesGetter([]byte("hello world"))

	got, err := g.GetRange(context.Background(), 6, 11)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(got), test.ShouldEqual, "world")

	_, err = g.GetRange(context.Background(), 6, 100)
	test.That(t, err, test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GetRange(ctx, 0, 1)
	test.That(t, err, test.ShouldNotBeNil)
}
