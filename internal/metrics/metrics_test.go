package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.MessagesReceived.Inc()
	c.Sends.WithLabelValues(Result(errors.New("boom"))).Inc()
	c.Sends.WithLabelValues(Result(nil)).Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"busclient_chat_messages_received_total 1",
		`busclient_chat_sends_total{result="failed"} 1`,
		`busclient_chat_sends_total{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
