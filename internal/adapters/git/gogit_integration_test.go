// Package git provides adapters for interacting with local Git repositories.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// testLogger is a minimal logger for testing that doesn't output anything.
type testLogger struct{}

func (l *testLogger) Info(_ context.Context, _ string, _ map[string]interface{})  {}
func (l *testLogger) Debug(_ context.Context, _ string, _ map[string]interface{}) {}
func (l *testLogger) Warn(_ context.Context, _ string, _ map[string]interface{})  {}

// testRepo is a throwaway repository driven through the git binary.
type testRepo struct {
	t    *testing.T
	dir  string
	tick int
}

// setupTestRepo creates a repository on branch "main" in a temporary directory.
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	r := &testRepo{t: t, dir: dir}
	r.git("init", "-b", "main")
	r.git("config", "user.email", "test@example.com")
	r.git("config", "user.name", "Test User")
	r.git("config", "commit.gpgsign", "false")
	return r
}

// commit writes files and commits them with a strictly increasing committer date.
func (r *testRepo) commit(msg string, files map[string]string) string {
	r.t.Helper()
	for name, content := range files {
		path := filepath.Join(r.dir, name)
		require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(r.t, os.WriteFile(path, []byte(content), 0o644))
	}
	r.git("add", "-A")

	r.tick++
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.tick) * time.Hour).Format(time.RFC3339)
	cmd := exec.Command("git", "commit", "--allow-empty", "-m", msg)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_DATE="+date, "GIT_COMMITTER_DATE="+date)
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git commit failed: %s", out)

	return r.output("rev-parse", "HEAD")
}

func (r *testRepo) git(args ...string) {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %v failed: %v\nOutput: %s", args, err, output)
	}
}

func (r *testRepo) output(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	output, err := cmd.Output()
	require.NoError(r.t, err, "git %v failed", args)
	return strings.TrimSpace(string(output))
}

func drain(t *testing.T, seq domain.CommitSequence) []*domain.CommitRecord {
	t.Helper()
	var out []*domain.CommitRecord
	for {
		rec, ok, err := seq.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func TestNewGoGitRepository_NotARepository(t *testing.T) {
	repo, err := NewGoGitRepository(context.Background(), t.TempDir(), Options{}, &testLogger{})

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrRepositoryNotFound)
}

func TestNewGoGitRepository_ResolvesMainBranch(t *testing.T) {
	src := setupTestRepo(t)
	head := src.commit("Initial commit", map[string]string{"app.py": "print('hi')\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)
	defer repo.Close()

	info := repo.Info()
	assert.Equal(t, "main", info.MainBranch)
	assert.Equal(t, src.dir, info.Path)

	again, err := repo.MainBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", again)
	assert.Equal(t, head, src.output("rev-parse", "HEAD"))
}

func TestNewGoGitRepository_MasterFallback(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("Initial commit", map[string]string{"app.py": "x = 1\n"})
	src.git("branch", "-m", "main", "master")

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	assert.Equal(t, "master", repo.Info().MainBranch)
}

func TestNewGoGitRepository_NoMainBranch(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("Initial commit", map[string]string{"app.py": "x = 1\n"})
	src.git("branch", "-m", "main", "trunk")

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrNoMainBranch)
}

func TestOpenOrClone_ClonesThenReopens(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("Initial commit", map[string]string{"app.py": "x = 1\n"})
	dataDir := t.TempDir()
	ctx := context.Background()

	repo, err := OpenOrClone(ctx, src.dir, Options{DataDir: dataDir}, &testLogger{})
	require.NoError(t, err)

	info := repo.Info()
	assert.Equal(t, filepath.Base(src.dir), info.Name)
	assert.Equal(t, filepath.Join(dataDir, "repos", info.Name), info.Path)
	assert.Equal(t, "main", info.MainBranch)
	assert.FileExists(t, filepath.Join(info.Path, "app.py"))

	// A second call opens the existing working copy instead of cloning.
	reopened, err := OpenOrClone(ctx, src.dir, Options{DataDir: dataDir}, &testLogger{})
	require.NoError(t, err)
	assert.Equal(t, info, reopened.Info())
}

func TestOpenOrClone_CloneFailure(t *testing.T) {
	dataDir := t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	repo, err := OpenOrClone(context.Background(), missing, Options{DataDir: dataDir}, &testLogger{})

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrCloneFailure)
	assert.NoDirExists(t, filepath.Join(dataDir, "repos", "does-not-exist"))
}

func TestGoGitRepository_Commits_FilterAndOrder(t *testing.T) {
	src := setupTestRepo(t)
	first := src.commit("add module", map[string]string{"app.py": "x = 1\n"})
	src.commit("docs only", map[string]string{"README.md": "# readme\n"})
	third := src.commit("change module", map[string]string{"app.py": "x = 2\ny = 3\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{Extensions: []string{".py"}})
	require.NoError(t, err)
	assert.Equal(t, 2, seq.Total())
	assert.Equal(t, 2, seq.Remaining())

	records := drain(t, seq)
	require.Len(t, records, 2)
	assert.Equal(t, first, records[0].Hash)
	assert.Equal(t, third, records[1].Hash)
	assert.Equal(t, 0, seq.Remaining())

	assert.Equal(t, "change module", records[1].Message)
	assert.Equal(t, "Test User", records[1].Author)
	assert.Equal(t, 2, records[1].Insertions)
	assert.Equal(t, 1, records[1].Deletions)
	assert.Equal(t, 3, records[1].LinesChanged)
	assert.False(t, records[1].IsMerge)
	assert.True(t, records[0].Date.Before(records[1].Date))
}

func TestGoGitRepository_Commits_NewestFirst(t *testing.T) {
	src := setupTestRepo(t)
	first := src.commit("one", map[string]string{"a.py": "a = 1\n"})
	second := src.commit("two", map[string]string{"b.py": "b = 1\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{NewestFirst: true})
	require.NoError(t, err)

	records := drain(t, seq)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].Hash)
	assert.Equal(t, first, records[1].Hash)
}

func TestGoGitRepository_Commits_ResumeAfter(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("one", map[string]string{"a.py": "a = 1\n"})
	second := src.commit("two", map[string]string{"a.py": "a = 2\n"})
	third := src.commit("three", map[string]string{"a.py": "a = 3\n"})
	fourth := src.commit("four", map[string]string{"a.py": "a = 4\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{ResumeAfter: second})
	require.NoError(t, err)

	records := drain(t, seq)
	require.Len(t, records, 2)
	assert.Equal(t, third, records[0].Hash)
	assert.Equal(t, fourth, records[1].Hash)
}

func TestGoGitRepository_Commits_UnknownResumeScansAll(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("one", map[string]string{"a.py": "a = 1\n"})
	src.commit("two", map[string]string{"a.py": "a = 2\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{
		ResumeAfter: strings.Repeat("0", 40),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seq.Total())
}

func TestGoGitRepository_Commits_ContextCancellation(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("one", map[string]string{"a.py": "a = 1\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq, err := repo.Commits(ctx, domain.SequenceOptions{})

	require.Error(t, err)
	assert.Nil(t, seq)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGoGitRepository_Commits_SkipsMergeCommits(t *testing.T) {
	src := setupTestRepo(t)
	base := src.commit("base", map[string]string{"a.py": "a = 1\n"})
	src.git("checkout", "-b", "feature")
	feature := src.commit("feature work", map[string]string{"b.py": "b = 1\n"})
	src.git("checkout", "main")
	mainWork := src.commit("main work", map[string]string{"c.py": "c = 1\n"})
	src.git("merge", "--no-ff", "feature", "-m", "Merge feature")
	merge := src.output("rev-parse", "HEAD")

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{})
	require.NoError(t, err)

	var hashes []string
	for _, rec := range drain(t, seq) {
		hashes = append(hashes, rec.Hash)
		assert.False(t, rec.IsMerge)
	}
	assert.Equal(t, []string{base, feature, mainWork}, hashes)
	assert.NotContains(t, hashes, merge)
}

func TestGoGitRepository_Commits_ResumeKeepsBranchMergedLater(t *testing.T) {
	// Arrange: the feature commit is older than the resume point but only
	// reaches main through a merge made after it.
	src := setupTestRepo(t)
	src.commit("base", map[string]string{"a.py": "a = 1\n"})
	src.git("checkout", "-b", "feature")
	feature := src.commit("feature work", map[string]string{"b.py": "b = 1\n"})
	src.git("checkout", "main")
	resumePoint := src.commit("main work", map[string]string{"c.py": "c = 1\n"})
	src.git("merge", "--no-ff", "feature", "-m", "Merge feature")
	after := src.commit("after merge", map[string]string{"a.py": "a = 2\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	// Act
	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{ResumeAfter: resumePoint})
	require.NoError(t, err)

	// Assert
	var hashes []string
	for _, rec := range drain(t, seq) {
		hashes = append(hashes, rec.Hash)
	}
	assert.Equal(t, []string{feature, after}, hashes)
}

func TestGoGitRepository_Commits_ResumeAtHead(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("one", map[string]string{"a.py": "a = 1\n"})
	head := src.commit("two", map[string]string{"a.py": "a = 2\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	seq, err := repo.Commits(context.Background(), domain.SequenceOptions{ResumeAfter: head})
	require.NoError(t, err)

	assert.Equal(t, 0, seq.Total())
}

func TestGoGitRepository_Acquire_Exclusive(t *testing.T) {
	src := setupTestRepo(t)
	first := src.commit("one", map[string]string{"a.py": "a = 1\n"})
	src.commit("two", map[string]string{"a.py": "a = 2\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	wc, err := repo.Acquire()
	require.NoError(t, err)

	_, err = repo.Acquire()
	assert.ErrorIs(t, err, domain.ErrWorkingCopyBusy)

	require.NoError(t, wc.Checkout(context.Background(), first))
	content, err := os.ReadFile(filepath.Join(wc.Root(), "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", string(content))

	wc.Release()
	wc.Release()
	assert.ErrorIs(t, wc.Checkout(context.Background(), first), domain.ErrWorkingCopyBusy)

	again, err := repo.Acquire()
	require.NoError(t, err)
	again.Release()
}

func TestGoGitRepository_Checkout_UnknownCommit(t *testing.T) {
	src := setupTestRepo(t)
	src.commit("one", map[string]string{"a.py": "a = 1\n"})

	repo, err := NewGoGitRepository(context.Background(), src.dir, Options{}, &testLogger{})
	require.NoError(t, err)

	wc, err := repo.Acquire()
	require.NoError(t, err)
	defer wc.Release()

	err = wc.Checkout(context.Background(), fmt.Sprintf("%040d", 1))
	require.Error(t, err)
}
