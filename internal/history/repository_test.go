package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/db"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func newRender(url string) *Render {
	now := time.Now()
	return &Render{ID: NewID(), SourceURL: url, CreatedAt: now, UpdatedAt: now}
}

func TestRepository_CreateAndComplete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rn := newRender("https://www.youtube.com/watch?v=abc123")
	if err := repo.CreateRender(ctx, rn); err != nil {
		t.Fatalf("CreateRender() error = %v", err)
	}

	got, err := repo.GetRender(ctx, rn.ID)
	if err != nil {
		t.Fatalf("GetRender() error = %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %s, want %s", got.Status, StatusRunning)
	}

	rn.Status = StatusSucceeded
	rn.Mode = ModeTranscript
	rn.VideoID = "abc123"
	rn.EntryCount = 3
	rn.Artifacts = []Artifact{
		{Index: 0, Path: "gifs/output_gif_0.gif", Text: "hello", Start: 0, Duration: 1.5},
		{Index: 2, Path: "gifs/output_gif_2.gif", Text: "world", Start: 3, Duration: 2},
	}
	rn.UpdatedAt = time.Now()
	if err := repo.CompleteRender(ctx, rn); err != nil {
		t.Fatalf("CompleteRender() error = %v", err)
	}

	got, err = repo.GetRender(ctx, rn.ID)
	if err != nil {
		t.Fatalf("GetRender() error = %v", err)
	}
	if got.Status != StatusSucceeded || got.Mode != ModeTranscript || got.VideoID != "abc123" {
		t.Errorf("unexpected render: %+v", got)
	}
	if got.ArtifactCount != 2 || len(got.Artifacts) != 2 {
		t.Fatalf("artifacts = %d/%d, want 2", got.ArtifactCount, len(got.Artifacts))
	}
	if got.Artifacts[1].Index != 2 || got.Artifacts[1].Text != "world" {
		t.Errorf("artifact[1] = %+v", got.Artifacts[1])
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestRepository_CompleteReplacesArtifacts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rn := newRender("u")
	if err := repo.CreateRender(ctx, rn); err != nil {
		t.Fatal(err)
	}
	rn.Artifacts = []Artifact{{Index: 0, Path: "a"}, {Index: 1, Path: "b"}}
	if err := repo.CompleteRender(ctx, rn); err != nil {
		t.Fatal(err)
	}
	rn.Status = StatusFailed
	rn.Error = "decode failed"
	rn.Artifacts = nil
	if err := repo.CompleteRender(ctx, rn); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetRender(ctx, rn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Artifacts) != 0 || got.ArtifactCount != 0 {
		t.Errorf("artifacts not replaced: %+v", got.Artifacts)
	}
	if got.Error != "decode failed" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestRepository_CompleteUnknownRender(t *testing.T) {
	repo := setupTestRepo(t)
	if err := repo.CompleteRender(context.Background(), newRender("u")); err == nil {
		t.Error("CompleteRender() should fail for unknown render")
	}
}

func TestRepository_GetRenderNotFound(t *testing.T) {
	repo := setupTestRepo(t)
	got, err := repo.GetRender(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRender() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetRender() = %+v, want nil", got)
	}
}

func TestRepository_ListRendersNewestFirst(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	var ids []string
	for _, u := range []string{"first", "second", "third"} {
		rn := newRender(u)
		if err := repo.CreateRender(ctx, rn); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rn.ID)
	}

	renders, err := repo.ListRenders(ctx, 2)
	if err != nil {
		t.Fatalf("ListRenders() error = %v", err)
	}
	if len(renders) != 2 {
		t.Fatalf("len = %d, want 2", len(renders))
	}
	if renders[0].ID != ids[2] || renders[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want [%s %s]", renders[0].ID, renders[1].ID, ids[2], ids[1])
	}
}

func TestRepository_Config(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "last_video_id")
	if err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "last_video_id", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetConfig(ctx, "last_video_id", "def"); err != nil {
		t.Fatal(err)
	}
	v, err = repo.GetConfig(ctx, "last_video_id")
	if err != nil || v != "def" {
		t.Errorf("GetConfig() = %q, %v, want def", v, err)
	}
}
