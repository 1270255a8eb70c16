package game

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/errs"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return New(config.Upstream{URL: url + "/", Token: "secret", Timeout: timeout})
}

func TestFetchSnapshotRoutesByMode(t *testing.T) {
	var gotPath, gotAuth, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte(`{"online":true,"players":{"online":5,"max":20},"version":"1.20.1","port":25565}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)

	tests := []struct {
		query, bedrock bool
		want           string
	}{
		{false, false, "/play.example.net"},
		{true, false, "/query/play.example.net"},
		{false, true, "/bedrock/play.example.net"},
	}

	for _, tt := range tests {
		snap, err := c.FetchSnapshot(context.Background(), "Play.Example.net", tt.query, tt.bedrock)
		if err != nil {
			t.Fatalf("FetchSnapshot(query=%v, bedrock=%v) error = %v", tt.query, tt.bedrock, err)
		}
		if gotPath != tt.want {
			t.Errorf("path = %q, want %q", gotPath, tt.want)
		}
		if gotAuth != "secret" {
			t.Errorf("Authorization = %q, want secret", gotAuth)
		}
		if !strings.HasPrefix(gotUA, "mcwatch/") {
			t.Errorf("User-Agent = %q", gotUA)
		}
		if snap.Online == nil || !*snap.Online || *snap.Players.Online != 5 || snap.Port.IPv4 != 25565 {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	}
}

func TestFetchSnapshotRejectsQueryWithBedrockBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).FetchSnapshot(context.Background(), "play.example.net", true, true)
	if !errs.Is(err, errs.CodeInvalidRequest) {
		t.Fatalf("error = %v, want %s", err, errs.CodeInvalidRequest)
	}
	if calls.Load() != 0 {
		t.Errorf("upstream was called %d times", calls.Load())
	}
}

func TestFetchSnapshotRejectsEmptyAddress(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1", time.Second).FetchSnapshot(context.Background(), "   ", false, false)
	if !errs.Is(err, errs.CodeInvalidRequest) {
		t.Fatalf("error = %v, want %s", err, errs.CodeInvalidRequest)
	}
}

func TestFetchSnapshotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(srv.URL, 50*time.Millisecond).FetchSnapshot(context.Background(), "slow.example.net", false, false)
	if !errs.Is(err, errs.CodeUpstreamTimeout) {
		t.Fatalf("error = %v, want %s", err, errs.CodeUpstreamTimeout)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestFetchSnapshotCallerCancellationIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(srv.URL, 5*time.Second).FetchSnapshot(ctx, "gone.example.net", false, false)
	if !errs.Is(err, errs.CodeUpstreamUnavailable) {
		t.Fatalf("error = %v, want %s", err, errs.CodeUpstreamUnavailable)
	}
}

func TestFetchSnapshotUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).FetchSnapshot(context.Background(), "play.example.net", false, false)
			if !errs.Is(err, errs.CodeUpstreamUnavailable) {
				t.Errorf("error = %v, want %s", err, errs.CodeUpstreamUnavailable)
			}
		})
	}
}

func TestFetchSnapshotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).FetchSnapshot(context.Background(), "play.example.net", false, false)
	if !errs.Is(err, errs.CodeUpstreamUnavailable) {
		t.Errorf("error = %v, want %s", err, errs.CodeUpstreamUnavailable)
	}
}

func TestFetchSnapshotBedrockPortObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"online":true,"players":{"online":1,"max":10},"port":{"ipv4":19132,"ipv6":19133},"edition":"MCPE","gamemode":"Survival","guid":"42"}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(srv.URL, time.Second).FetchSnapshot(context.Background(), "pe.example.net", false, true)
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if snap.Port.IPv4 != 19132 || snap.Port.IPv6 != 19133 || *snap.GUID != "42" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}
