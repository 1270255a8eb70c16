package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/mcwatch/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func strPtr(s string) *string { return &s }

func javaStatus(players int, query bool) models.Status {
	st := models.Status{
		Version: strPtr("1.20.1"),
		Java: &models.JavaFields{
			Software: strPtr("Paper"),
			Favicon:  strPtr("data:image/png;base64,AAAA"),
		},
		Motd:     models.Motd{Raw: "§aHi", Clean: "Hi", HTML: "<span>Hi</span>"},
		Host:     "play.example.net",
		Players:  models.Players{Online: players, Max: 100},
		Port:     25565,
		Protocol: 763,
		Online:   true,
	}
	if query {
		st.Java.Query = &models.QueryFields{IP: "1.2.3.4", Map: "world", Plugins: []string{"Essentials"}}
	}
	return st
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		repo, err := New(path)
		if err != nil {
			t.Fatalf("New() run %d error = %v", i, err)
		}
		_ = repo.Close()
	}
}

func TestUpsertServerInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	key := models.NewKey("Play.Example.net", models.EditionJava)

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec, err := repo.UpsertServer(ctx, key, javaStatus(5, true), first)
	if err != nil {
		t.Fatalf("UpsertServer() error = %v", err)
	}
	if rec.ID == 0 || rec.Address != "play.example.net" || !rec.CreatedAt.Equal(first) {
		t.Fatalf("unexpected inserted record: %+v", rec)
	}
	if !rec.QueryMode() || rec.Java.Query.Plugins[0] != "Essentials" {
		t.Fatalf("query fields not stored: %+v", rec.Java)
	}

	second := first.Add(time.Hour)
	updated, err := repo.UpsertServer(ctx, key, javaStatus(7, false), second)
	if err != nil {
		t.Fatalf("UpsertServer() update error = %v", err)
	}
	if updated.ID != rec.ID {
		t.Errorf("id changed: %d -> %d", rec.ID, updated.ID)
	}
	if !updated.CreatedAt.Equal(first) || !updated.UpdatedAt.Equal(second) {
		t.Errorf("timestamps = %s / %s", updated.CreatedAt, updated.UpdatedAt)
	}

	found, err := repo.FindServer(ctx, key)
	if err != nil || found == nil {
		t.Fatalf("FindServer() = %v, %v", found, err)
	}
	if found.Players.Online != 7 {
		t.Errorf("players online = %d, want 7", found.Players.Online)
	}
	if found.QueryMode() {
		t.Errorf("query fields survived a non-query upsert: %+v", found.Java.Query)
	}
	if found.Bedrock != nil {
		t.Errorf("java record has bedrock fields")
	}
}

func TestFindServerMiss(t *testing.T) {
	repo := newTestRepo(t)
	rec, err := repo.FindServer(context.Background(), models.NewKey("nope.example.net", models.EditionJava))
	if err != nil || rec != nil {
		t.Fatalf("FindServer() = %v, %v; want nil, nil", rec, err)
	}
}

func TestEditionsAreSeparateRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now()

	java, err := repo.UpsertServer(ctx, models.NewKey("mixed.example.net", models.EditionJava), javaStatus(1, false), now)
	if err != nil {
		t.Fatal(err)
	}
	bedrock, err := repo.UpsertServer(ctx, models.NewKey("mixed.example.net", models.EditionBedrock), models.Status{
		Bedrock: &models.BedrockFields{EditionName: "MCPE", Gamemode: "Survival", GUID: "1"},
		Players: models.Players{Online: 2, Max: 10},
		Port:    19132,
		Online:  true,
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if java.ID == bedrock.ID {
		t.Fatalf("editions share id %d", java.ID)
	}
	if bedrock.Java != nil || bedrock.Bedrock.GUID != "1" {
		t.Errorf("unexpected bedrock record: %+v", bedrock.Status)
	}

	n, err := repo.CountServers(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountServers() = %d, %v", n, err)
	}
	targets, err := repo.RefreshTargets(ctx)
	if err != nil || len(targets) != 2 {
		t.Errorf("RefreshTargets() = %v, %v", targets, err)
	}
	list, err := repo.ListServers(ctx, 10, 0)
	if err != nil || len(list) != 2 {
		t.Errorf("ListServers() = %v, %v", list, err)
	}
}

func TestRefreshTargetsKeepLastMode(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now()

	queried := models.NewKey("query.example.net", models.EditionJava)
	plain := models.NewKey("plain.example.net", models.EditionJava)
	downgraded := models.NewKey("was-query.example.net", models.EditionJava)

	for _, up := range []struct {
		key   models.Key
		query bool
	}{
		{queried, true},
		{plain, false},
		{downgraded, true},
		{downgraded, false},
	} {
		if _, err := repo.UpsertServer(ctx, up.key, javaStatus(1, up.query), now); err != nil {
			t.Fatal(err)
		}
	}

	targets, err := repo.RefreshTargets(ctx)
	if err != nil {
		t.Fatalf("RefreshTargets() error = %v", err)
	}

	got := make(map[models.Key]bool, len(targets))
	for _, target := range targets {
		got[target.Key] = target.Query
	}
	want := map[models.Key]bool{queried: true, plain: false, downgraded: false}
	if len(got) != len(want) {
		t.Fatalf("targets = %+v", targets)
	}
	for key, query := range want {
		if got[key] != query {
			t.Errorf("%s query = %v, want %v", key, got[key], query)
		}
	}
}

func TestChecksAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rec, err := repo.UpsertServer(ctx, models.NewKey("a.example.net", models.EditionJava), javaStatus(3, false), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	tok, err := repo.CreateToken(ctx, "web", "secret", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	c := &models.Check{CheckedAt: time.Now(), Source: models.SourceWeb, ServerID: rec.ID, TokenID: tok.ID, PlayersOnline: 3, Online: true}
	if err := repo.AppendCheck(ctx, c); err != nil {
		t.Fatalf("AppendCheck() error = %v", err)
	}
	if c.ID == 0 {
		t.Fatal("check id not set")
	}

	if _, err := repo.db.ExecContext(ctx, `UPDATE checks SET players_online = 99 WHERE id = ?`, c.ID); err == nil {
		t.Error("update of a check succeeded")
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM checks WHERE id = ?`, c.ID); err == nil {
		t.Error("delete of a check succeeded")
	}

	checks, err := repo.RecentChecks(ctx, rec.ID, 20, 0)
	if err != nil || len(checks) != 1 || checks[0].PlayersOnline != 3 || checks[0].Source != models.SourceWeb {
		t.Errorf("RecentChecks() = %+v, %v", checks, err)
	}
}

func TestFindToken(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.CreateToken(ctx, "api", "s3cret", time.Now()); err != nil {
		t.Fatal(err)
	}
	tok, err := repo.FindToken(ctx, "s3cret")
	if err != nil || tok == nil || tok.Name != "api" {
		t.Fatalf("FindToken() = %+v, %v", tok, err)
	}
	missing, err := repo.FindToken(ctx, "other")
	if err != nil || missing != nil {
		t.Fatalf("FindToken(other) = %+v, %v", missing, err)
	}
}

func TestCountRanges(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rec, err := repo.UpsertServer(ctx, models.NewKey("b.example.net", models.EditionJava), javaStatus(1, false), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{
		base.AddDate(0, -1, -5), // last month, before the same day
		base.AddDate(0, -1, 5),  // last month, after the same day
		base.AddDate(0, 0, -10), // this month
		base,
	} {
		if err := repo.AppendVote(ctx, &models.Vote{CreatedAt: at, ServerID: rec.ID, UserID: 1}); err != nil {
			t.Fatal(err)
		}
	}

	thisMonth := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	total, _ := repo.CountVotesSince(ctx, rec.ID, time.Time{})
	since, _ := repo.CountVotesSince(ctx, rec.ID, thisMonth)
	between, _ := repo.CountVotesBetween(ctx, rec.ID, thisMonth.AddDate(0, -1, 0), base.AddDate(0, -1, 0))

	if total != 4 || since != 2 || between != 1 {
		t.Errorf("counts = total %d, since %d, between %d; want 4, 2, 1", total, since, between)
	}
}
