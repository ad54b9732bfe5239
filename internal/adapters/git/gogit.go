// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.Repository interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/dmm"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Options configures how a repository is opened or cloned.
type Options struct {
	// DataDir is the root under which working copies live in repos/<name>.
	DataDir string

	// Token, when set, is sent as HTTP basic auth password on clone and remote listing.
	Token string

	// Extractor provides units for delta maintainability. Nil disables DMM.
	Extractor domain.UnitExtractor
}

// mainBranchCandidates are tried in order before asking the remote.
var mainBranchCandidates = []plumbing.ReferenceName{
	plumbing.NewBranchReferenceName("main"),
	plumbing.NewBranchReferenceName("master"),
	plumbing.NewRemoteReferenceName("origin", "main"),
	plumbing.NewRemoteReferenceName("origin", "master"),
}

// GoGitRepository implements domain.Repository using go-git/v5.
// It owns the working copy's checkout state; see Acquire.
type GoGitRepository struct {
	repo    *git.Repository
	info    domain.RepositoryInfo
	mainRef *plumbing.Reference
	auth    transport.AuthMethod
	dmm     *dmm.Calculator
	leased  atomic.Bool
	logger  Logger
}

// OpenOrClone returns a ready working copy for url under opts.DataDir.
// An existing non-empty directory is opened as-is without fetching; otherwise
// the remote is cloned. After construction the working copy is checked out to
// the resolved main branch.
func OpenOrClone(ctx context.Context, url string, opts Options, log Logger) (*GoGitRepository, error) {
	name, err := RepoNameFromURL(url)
	if err != nil {
		return nil, err
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = domain.DefaultDataDir
	}
	path := filepath.Join(dataDir, "repos", name)

	r := &GoGitRepository{
		info:   domain.RepositoryInfo{URL: url, Name: name, Path: path},
		auth:   basicAuth(opts.Token),
		logger: log,
	}
	if opts.Extractor != nil {
		r.dmm = dmm.NewCalculator(opts.Extractor, log)
	}

	if nonEmptyDir(path) {
		r.repo, err = git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
		}
		log.Debug(ctx, "opened existing working copy", map[string]interface{}{
			"repository": name,
			"path":       path,
		})
	} else {
		log.Info(ctx, "cloning repository", map[string]interface{}{
			"repository": name,
			"url":        url,
			"path":       path,
		})
		r.repo, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
			URL:  url,
			Auth: r.auth,
		})
		if err != nil {
			// Leave no half-cloned directory behind; it would be opened as-is next time.
			_ = os.RemoveAll(path)
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrCloneFailure, url, err)
		}
	}

	if err := r.checkoutMainBranch(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// NewGoGitRepository opens the working copy at path without cloning.
// The repository name is taken from the directory name.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func NewGoGitRepository(ctx context.Context, path string, opts Options, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	r := &GoGitRepository{
		repo:   repo,
		info:   domain.RepositoryInfo{Name: filepath.Base(path), Path: path},
		auth:   basicAuth(opts.Token),
		logger: log,
	}
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		r.info.URL = remote.Config().URLs[0]
	}
	if opts.Extractor != nil {
		r.dmm = dmm.NewCalculator(opts.Extractor, log)
	}

	if err := r.checkoutMainBranch(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Info returns the repository description including the resolved main branch.
func (r *GoGitRepository) Info() domain.RepositoryInfo {
	return r.info
}

// MainBranch resolves the integration branch. The first successful resolution is
// cached, so repeated calls return the same name.
func (r *GoGitRepository) MainBranch(ctx context.Context) (string, error) {
	if r.mainRef != nil {
		return r.info.MainBranch, nil
	}

	for _, candidate := range mainBranchCandidates {
		ref, err := r.repo.Reference(candidate, true)
		if err == nil {
			r.setMainRef(candidate, ref)
			return r.info.MainBranch, nil
		}
	}

	defaultBranch, err := r.remoteDefaultBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("%w in %s: %w", domain.ErrNoMainBranch, r.info.Name, err)
	}

	for _, candidate := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(defaultBranch),
		plumbing.NewRemoteReferenceName("origin", defaultBranch),
	} {
		ref, err := r.repo.Reference(candidate, true)
		if err == nil {
			r.setMainRef(candidate, ref)
			return r.info.MainBranch, nil
		}
	}

	return "", fmt.Errorf("%w in %s: remote default %q not present locally",
		domain.ErrNoMainBranch, r.info.Name, defaultBranch)
}

func (r *GoGitRepository) setMainRef(name plumbing.ReferenceName, ref *plumbing.Reference) {
	r.mainRef = plumbing.NewHashReference(name, ref.Hash())
	r.info.MainBranch = name.Short()
}

// remoteDefaultBranch asks origin which branch its HEAD points at.
func (r *GoGitRepository) remoteDefaultBranch(ctx context.Context) (string, error) {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("failed to get origin remote: %w", err)
	}

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: r.auth})
	if err != nil {
		return "", fmt.Errorf("failed to list remote references: %w", err)
	}

	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference {
			return ref.Target().Short(), nil
		}
	}
	return "", errors.New("remote does not advertise a default branch")
}

// checkoutMainBranch resolves the main branch and force-checks it out.
// Local branches are checked out by name, remote-tracking ones as a detached HEAD.
func (r *GoGitRepository) checkoutMainBranch(ctx context.Context) error {
	if _, err := r.MainBranch(ctx); err != nil {
		return err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	opts := &git.CheckoutOptions{Force: true}
	if r.mainRef.Name().IsBranch() {
		opts.Branch = r.mainRef.Name()
	} else {
		opts.Hash = r.mainRef.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("failed to check out %s: %w", r.info.MainBranch, err)
	}

	r.logger.Debug(ctx, "checked out main branch", map[string]interface{}{
		"repository":  r.info.Name,
		"main_branch": r.info.MainBranch,
		"head_sha":    r.mainRef.Hash().String(),
	})
	return nil
}

// Acquire takes the exclusive checkout lease on the working copy.
func (r *GoGitRepository) Acquire() (domain.WorkingCopy, error) {
	if !r.leased.CompareAndSwap(false, true) {
		return nil, domain.ErrWorkingCopyBusy
	}
	return &workingCopy{owner: r}, nil
}

// Close releases any resources held by the repository.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (r *GoGitRepository) Close() error {
	return nil
}

// workingCopy is the lease handed out by Acquire.
type workingCopy struct {
	owner    *GoGitRepository
	released atomic.Bool
}

func (w *workingCopy) Root() string {
	return w.owner.info.Path
}

func (w *workingCopy) Checkout(_ context.Context, hash string) error {
	if w.released.Load() {
		return domain.ErrWorkingCopyBusy
	}

	wt, err := w.owner.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(hash), Force: true}); err != nil {
		return fmt.Errorf("failed to check out %s: %w", hash, err)
	}
	return nil
}

func (w *workingCopy) Release() {
	if w.released.CompareAndSwap(false, true) {
		w.owner.leased.Store(false)
	}
}

// RepoNameFromURL derives the short repository name from a remote URL:
//   - https://github.com/owner/repo.git -> repo
//   - https://github.com/owner/repo -> repo
//   - git@github.com:owner/repo.git -> repo
func RepoNameFromURL(url string) (string, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return "", fmt.Errorf("%w: empty URL", domain.ErrInvalidRepositoryURL)
	}

	name := url
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidRepositoryURL, url)
	}
	return name, nil
}

func basicAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "git", Password: token}
}

func nonEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
