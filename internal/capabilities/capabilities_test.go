package capabilities

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/services"
)

type stubService struct {
	caps  models.Capabilities
	err   error
	calls int
}

func (s *stubService) GetCapabilities(ctx context.Context) (models.Capabilities, error) {
	s.calls++
	return s.caps, s.err
}

func TestHolder(t *testing.T) {
	h := NewHolder()
	if h.Fetched() {
		t.Error("new holder should not be fetched")
	}
	if got := h.Clamp(models.QualityLossless); got != models.QualityStandard {
		t.Errorf("expected conservative clamp, got %s", got)
	}

	h.Set(models.Capabilities{CanStreamHQ: true})
	if !h.Fetched() {
		t.Error("expected fetched after Set")
	}
	if got := h.Clamp(models.QualityLossless); got != models.QualityHigh {
		t.Errorf("expected high, got %s", got)
	}
}

func TestBootstrap(t *testing.T) {
	t.Run("stores fetched capabilities", func(t *testing.T) {
		svc := &stubService{caps: models.Capabilities{CanStreamHQ: true, CanStreamLossless: true}}
		h := NewHolder()
		(&Bootstrap{Service: svc, Holder: h}).Run(context.Background())

		if svc.calls != 1 || !h.Get().CanStreamLossless {
			t.Errorf("unexpected result: calls=%d caps=%+v", svc.calls, h.Get())
		}
	})

	t.Run("failure stores conservative", func(t *testing.T) {
		svc := &stubService{caps: models.Capabilities{CanStreamHQ: true}, err: errors.New("boom")}
		h := NewHolder()
		(&Bootstrap{Service: svc, Holder: h}).Run(context.Background())

		if !h.Fetched() || h.Get() != models.ConservativeCapabilities() {
			t.Errorf("expected conservative caps, got %+v", h.Get())
		}
	})

	t.Run("skipped when not authenticated", func(t *testing.T) {
		svc := &stubService{}
		h := NewHolder()
		(&Bootstrap{Service: svc, Holder: h, Authenticated: func() bool { return false }}).Run(context.Background())

		if svc.calls != 0 || h.Fetched() {
			t.Error("expected no fetch")
		}
	})

	t.Run("cancelled during delay", func(t *testing.T) {
		svc := &stubService{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		<-(&Bootstrap{Service: svc, Holder: NewHolder(), Delay: time.Hour}).Start(ctx)

		if svc.calls != 0 {
			t.Error("expected no fetch after cancellation")
		}
	})

	t.Run("over http", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/me/capabilities" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"can_stream_hq":true,"can_stream_lossless":false}`))
		}))
		defer srv.Close()

		h := NewHolder()
		b := &Bootstrap{
			Service: services.NewCapabilitiesClient(services.NewClientWithHTTP(srv.URL, srv.Client())),
			Holder:  h,
			Delay:   time.Millisecond,
		}
		<-b.Start(context.Background())

		if got := h.Clamp(models.QualityLossless); got != models.QualityHigh {
			t.Errorf("expected high after fetch, got %s", got)
		}
	})
}
