package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/resolver"
)

type memStore struct {
	targets []models.RefreshTarget
	tokens  []models.Token
}

func (m *memStore) RefreshTargets(context.Context) ([]models.RefreshTarget, error) {
	return m.targets, nil
}

func target(address string, edition models.Edition, query bool) models.RefreshTarget {
	return models.RefreshTarget{Key: models.NewKey(address, edition), Query: query}
}

func (m *memStore) CreateToken(_ context.Context, name, secret string, now time.Time) (*models.Token, error) {
	t := models.Token{ID: int64(len(m.tokens) + 1), Name: name, Token: secret, CreatedAt: now}
	m.tokens = append(m.tokens, t)
	return &t, nil
}

type recordingResolver struct {
	reqs []resolver.Request
	mu   sync.Mutex
}

func (r *recordingResolver) Resolve(_ context.Context, req resolver.Request) (*resolver.View, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()

	if strings.HasPrefix(req.Address, "down") {
		return nil, errs.New(errs.CodeResolutionFailed, "down")
	}
	if strings.HasPrefix(req.Address, "stale") {
		return &resolver.View{Record: &models.ServerRecord{}, Freshness: resolver.FreshnessStale}, nil
	}
	return &resolver.View{Record: &models.ServerRecord{}, Freshness: resolver.FreshnessFresh}, nil
}

func TestRunWithoutTasks(t *testing.T) {
	if Run(context.Background(), &config.Config{}, &memStore{}, &recordingResolver{}, &bytes.Buffer{}) {
		t.Error("Run() reported a task without flags")
	}
}

func TestRunCreateToken(t *testing.T) {
	store := &memStore{}
	var out bytes.Buffer
	cfg := &config.Config{Storage: config.Storage{CreateToken: "partner"}}

	if !Run(context.Background(), cfg, store, &recordingResolver{}, &out) {
		t.Fatal("Run() did not run create-token")
	}
	if len(store.tokens) != 1 || store.tokens[0].Name != "partner" || len(store.tokens[0].Token) != 36 {
		t.Fatalf("tokens = %+v", store.tokens)
	}
	if want := "partner\t" + store.tokens[0].Token + "\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRunRefreshAllUsesBotSource(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 25; i++ {
		store.targets = append(store.targets, target(fmt.Sprintf("s%d.example.net", i), models.EditionJava, false))
	}
	store.targets = append(store.targets,
		target("pe.example.net", models.EditionBedrock, false),
		target("down.example.net", models.EditionJava, false),
		target("stale.example.net", models.EditionJava, false),
	)

	engine := &recordingResolver{}
	cfg := &config.Config{
		Server:  config.Server{WebToken: "web"},
		Storage: config.Storage{RefreshAll: true},
	}

	if !Run(context.Background(), cfg, store, engine, &bytes.Buffer{}) {
		t.Fatal("Run() did not run refresh-all")
	}
	if len(engine.reqs) != len(store.targets) {
		t.Fatalf("resolutions = %d, want %d", len(engine.reqs), len(store.targets))
	}

	for _, req := range engine.reqs {
		if req.Caller.Source != models.SourceBot || req.Caller.Token != "web" || req.Query || req.TrackingOptOut {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Address == "pe.example.net" && !req.Bedrock {
			t.Errorf("bedrock key resolved as java")
		}
	}
}

func TestRefreshAllCounts(t *testing.T) {
	targets := []models.RefreshTarget{
		target("a.example.net", models.EditionJava, false),
		target("down.example.net", models.EditionJava, false),
		target("stale.example.net", models.EditionJava, false),
	}

	ok, failed := RefreshAll(context.Background(), &recordingResolver{}, targets, "web")
	if ok != 1 || failed != 2 {
		t.Errorf("RefreshAll() = %d, %d; want 1, 2", ok, failed)
	}
}

func TestRefreshAllKeepsQueryMode(t *testing.T) {
	targets := []models.RefreshTarget{
		target("plugins.example.net", models.EditionJava, true),
		target("plain.example.net", models.EditionJava, false),
		target("pe.example.net", models.EditionBedrock, true),
	}
	engine := &recordingResolver{}

	RefreshAll(context.Background(), engine, targets, "web")

	want := map[string]bool{
		"plugins.example.net": true,
		"plain.example.net":   false,
		"pe.example.net":      false,
	}
	if len(engine.reqs) != len(want) {
		t.Fatalf("resolutions = %d, want %d", len(engine.reqs), len(want))
	}
	for _, req := range engine.reqs {
		if req.Query != want[req.Address] {
			t.Errorf("%s resolved with query=%v, want %v", req.Address, req.Query, want[req.Address])
		}
		if req.Query && req.Bedrock {
			t.Errorf("%s resolved in query mode as bedrock", req.Address)
		}
	}
}
