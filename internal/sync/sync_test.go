package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"

	"github.com/fleetconf/git-agent/internal/git"
	"github.com/fleetconf/git-agent/internal/logging"
)

// fakeEngine records the operation sequence and simulates the on-disk state
// transition a clone performs.
type fakeEngine struct {
	present    bool
	tip        string
	calls      []string
	cloneDepth int

	detectErr error
	cloneErr  error
	fetchErr  error
	resetErr  error
}

func (f *fakeEngine) Detect(path string) (bool, error) {
	f.calls = append(f.calls, "detect")
	return f.present, f.detectErr
}

func (f *fakeEngine) Clone(_ context.Context, url, branch, path string, depth int) (string, error) {
	f.calls = append(f.calls, "clone")
	f.cloneDepth = depth
	if f.cloneErr != nil {
		return "", f.cloneErr
	}
	f.present = true
	return f.tip, nil
}

func (f *fakeEngine) FetchBranch(_ context.Context, path, branch string) (string, error) {
	f.calls = append(f.calls, "fetch")
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.tip, nil
}

func (f *fakeEngine) HardReset(path, sha string) error {
	f.calls = append(f.calls, fmt.Sprintf("reset %s", sha))
	return f.resetErr
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

const tip = "0123456789abcdef0123456789abcdef01234567"

func TestSyncClonesWhenAbsent(t *testing.T) {
	engine := &fakeEngine{present: false, tip: tip}
	s := New(engine, 1, testLogger())

	sha, err := s.Sync(t.Context(), "https://example.com/conf.git", "main", "/repos/conf", 3)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sha != tip {
		t.Fatalf("sha: got %q, want %q", sha, tip)
	}
	if engine.cloneDepth != 3 {
		t.Fatalf("depth: got %d, want 3", engine.cloneDepth)
	}
	if diff := cmp.Diff([]string{"detect", "clone"}, engine.calls); diff != "" {
		t.Fatalf("call sequence (-want +got):\n%s", diff)
	}
}

func TestSyncAppliesDefaultDepth(t *testing.T) {
	engine := &fakeEngine{present: false, tip: tip}
	s := New(engine, 1, testLogger())

	if _, err := s.Sync(t.Context(), "u", "main", "/p", 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if engine.cloneDepth != 1 {
		t.Fatalf("depth: got %d, want default 1", engine.cloneDepth)
	}
}

func TestSyncFetchesAndResetsWhenPresent(t *testing.T) {
	engine := &fakeEngine{present: true, tip: tip}
	s := New(engine, 1, testLogger())

	sha, err := s.Sync(t.Context(), "u", "main", "/p", 1)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sha != tip {
		t.Fatalf("sha: got %q, want %q", sha, tip)
	}

	want := []string{"detect", "fetch", "reset " + tip}
	if diff := cmp.Diff(want, engine.calls); diff != "" {
		t.Fatalf("call sequence (-want +got):\n%s", diff)
	}
}

func TestSyncIdempotent(t *testing.T) {
	engine := &fakeEngine{present: false, tip: tip}
	s := New(engine, 1, testLogger())

	first, err := s.Sync(t.Context(), "u", "main", "/p", 1)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := s.Sync(t.Context(), "u", "main", "/p", 1)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	if first != second {
		t.Fatalf("idempotence violated: %q then %q", first, second)
	}

	// First call converges by cloning, the second by fetch+reset.
	want := []string{"detect", "clone", "detect", "fetch", "reset " + tip}
	if diff := cmp.Diff(want, engine.calls); diff != "" {
		t.Fatalf("call sequence (-want +got):\n%s", diff)
	}
}

func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content, message string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := w.Add(name); err != nil {
		t.Fatalf("add: %v", err)
	}

	hash, err := w.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	return hash.String()
}

func TestSyncEndToEndLocalRemote(t *testing.T) {
	originDir := t.TempDir()
	origin, err := gogit.PlainInit(originDir, false)
	if err != nil {
		t.Fatalf("init origin: %v", err)
	}
	commitFile(t, origin, originDir, "file.txt", "v1", "First commit")
	second := commitFile(t, origin, originDir, "file.txt", "v2", "Second commit")

	log := testLogger()
	s := New(git.NewEngine(nil, log), 1, log)
	dest := filepath.Join(t.TempDir(), "clone")

	// Absent working tree: sync clones shallow and reports the origin tip.
	sha, err := s.Sync(t.Context(), originDir, "master", dest, 0)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if sha != second {
		t.Fatalf("first sync: got %s, want %s", sha, second)
	}

	// Present working tree with a dirty tracked file and a moved origin:
	// sync fetches, hard-resets and converges on the new tip.
	if err := os.WriteFile(filepath.Join(dest, "file.txt"), []byte("dirty"), 0o644); err != nil {
		t.Fatal(err)
	}
	third := commitFile(t, origin, originDir, "file.txt", "v3", "Third commit")

	sha, err = s.Sync(t.Context(), originDir, "master", dest, 0)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if sha != third {
		t.Fatalf("second sync: got %s, want %s", sha, third)
	}

	content, err := os.ReadFile(filepath.Join(dest, "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "v3" {
		t.Fatalf("working tree did not converge: %q", content)
	}
}

func TestSyncPropagatesErrors(t *testing.T) {
	boom := errors.New("network down")

	tests := []struct {
		name   string
		engine *fakeEngine
	}{
		{"detect", &fakeEngine{detectErr: boom}},
		{"clone", &fakeEngine{present: false, cloneErr: boom}},
		{"fetch", &fakeEngine{present: true, fetchErr: boom}},
		{"reset", &fakeEngine{present: true, tip: tip, resetErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.engine, 1, testLogger())
			if _, err := s.Sync(t.Context(), "u", "main", "/p", 1); !errors.Is(err, boom) {
				t.Fatalf("expected propagated error, got %v", err)
			}
		})
	}
}
