package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scripted struct {
	calls   int
	replies []func() (*http.Response, error)
}

func (s *scripted) RoundTrip(*http.Request) (*http.Response, error) {
	r := s.replies[s.calls]
	s.calls++
	return r()
}

func reply(status int, body string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}, nil
	}
}

func failure(err error) func() (*http.Response, error) {
	return func() (*http.Response, error) { return nil, err }
}

func post(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "https://api.telegram.org/botx/sendMessage", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func TestRetryTransportWaitsOutShortFlood(t *testing.T) {
	base := &scripted{replies: []func() (*http.Response, error){
		reply(http.StatusTooManyRequests, `{"ok":false,"error_code":429,"parameters":{"retry_after":1}}`),
		reply(http.StatusOK, `{"ok":true}`),
	}}
	rt := &retryTransport{base: base, maxRetries: 2, maxFloodWait: 5 * time.Second}

	start := time.Now()
	resp, err := rt.RoundTrip(post(t, `{"chat_id":1}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if base.calls != 2 {
		t.Fatalf("calls = %d", base.calls)
	}
	if waited := time.Since(start); waited < time.Second {
		t.Fatalf("retried after %s, want at least the flood wait", waited)
	}
}

func TestRetryTransportReturnsLongFlood(t *testing.T) {
	base := &scripted{replies: []func() (*http.Response, error){
		reply(http.StatusTooManyRequests, `{"ok":false,"error_code":429,"parameters":{"retry_after":30}}`),
	}}
	rt := &retryTransport{base: base, maxRetries: 2, maxFloodWait: 5 * time.Second}

	resp, err := rt.RoundTrip(post(t, `{"chat_id":1}`))
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d", base.calls)
	}
	var body struct {
		ErrorCode int `json:"error_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.ErrorCode != 429 {
		t.Fatalf("body should stay readable: %v %+v", err, body)
	}
}

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	base := &scripted{replies: []func() (*http.Response, error){
		failure(dial),
		reply(http.StatusOK, `{"ok":true}`),
	}}
	rt := &retryTransport{base: base, maxRetries: 2}

	resp, err := rt.RoundTrip(post(t, `{"chat_id":1}`))
	if err != nil || resp.StatusCode != http.StatusOK || base.calls != 2 {
		t.Fatalf("resp=%v err=%v calls=%d", resp, err, base.calls)
	}
}

func TestRetryTransportKeepsOneShotBodies(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	base := &scripted{replies: []func() (*http.Response, error){failure(dial)}}
	rt := &retryTransport{base: base, maxRetries: 2}

	req := post(t, "payload")
	req.GetBody = nil
	if _, err := rt.RoundTrip(req); !errors.Is(err, dial) {
		t.Fatalf("err = %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("a body that cannot be replayed was sent %d times", base.calls)
	}
}
