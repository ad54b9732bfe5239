package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/dmm"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// CommitSequence implements domain.CommitSequence over a pre-filtered list of
// hashes. Commit details are loaded lazily by Next.
type CommitSequence struct {
	owner  *GoGitRepository
	hashes []plumbing.Hash
	pos    int
}

// Commits lists the non-merge commits on the main branch that touch at least one
// file with one of opts.Extensions, in committer-time order. With opts.ResumeAfter
// set, the listing is the range ResumeAfter..head: commits reachable from the head
// but not from ResumeAfter, so side branches merged after the resume point are
// still visited. When ResumeAfter is not in the history the full history is
// returned and a warning logged.
func (r *GoGitRepository) Commits(ctx context.Context, opts domain.SequenceOptions) (domain.CommitSequence, error) {
	if _, err := r.MainBranch(ctx); err != nil {
		return nil, err
	}

	head, err := r.repo.CommitObject(r.mainRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object for %s: %w", r.info.MainBranch, err)
	}

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = []string{domain.DefaultSourceExtension}
	}

	var exclude map[plumbing.Hash]bool
	if opts.ResumeAfter != "" {
		exclude, err = r.resumeExclusions(ctx, head, opts.ResumeAfter)
		if err != nil {
			return nil, err
		}
		if exclude == nil {
			r.logger.Warn(ctx, "resume commit not found in history; scanning full history", map[string]interface{}{
				"repository":   r.info.Name,
				"resume_after": opts.ResumeAfter,
			})
		}
	}

	var newestFirst []plumbing.Hash
	iter := object.NewCommitIterCTime(head, exclude, nil)

	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Merges carry no modifications of their own.
		if c.NumParents() > 1 {
			return nil
		}

		touches, err := touchesExtensions(ctx, c, extensions)
		if err != nil {
			return err
		}
		if touches {
			newestFirst = append(newestFirst, c.Hash)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commit history: %w", err)
	}

	hashes := newestFirst
	if !opts.NewestFirst {
		hashes = make([]plumbing.Hash, len(newestFirst))
		for i, h := range newestFirst {
			hashes[len(newestFirst)-1-i] = h
		}
	}

	r.logger.Debug(ctx, "listed commits", map[string]interface{}{
		"repository":   r.info.Name,
		"main_branch":  r.info.MainBranch,
		"commits":      len(hashes),
		"resume_after": opts.ResumeAfter,
		"newest_first": opts.NewestFirst,
	})

	return &CommitSequence{owner: r, hashes: hashes}, nil
}

// resumeExclusions returns the resume commit and all of its ancestors. It
// returns nil when the hash is unknown or not reachable from head.
func (r *GoGitRepository) resumeExclusions(
	ctx context.Context,
	head *object.Commit,
	resumeAfter string,
) (map[plumbing.Hash]bool, error) {
	if !plumbing.IsHash(resumeAfter) {
		return nil, nil
	}
	resume, err := r.repo.CommitObject(plumbing.NewHash(resumeAfter))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resume commit %s: %w", resumeAfter, err)
	}

	reachable, err := resume.IsAncestor(head)
	if err != nil {
		return nil, fmt.Errorf("failed to check ancestry of %s: %w", resumeAfter, err)
	}
	if !reachable {
		return nil, nil
	}

	seen := make(map[plumbing.Hash]bool)
	err = object.NewCommitPreorderIter(resume, nil, nil).ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history of %s: %w", resumeAfter, err)
	}
	return seen, nil
}

// Total returns the number of commits in the sequence.
func (s *CommitSequence) Total() int {
	return len(s.hashes)
}

// Remaining returns the number of commits not yet returned by Next.
func (s *CommitSequence) Remaining() int {
	return len(s.hashes) - s.pos
}

// Next loads the next commit record.
func (s *CommitSequence) Next(ctx context.Context) (*domain.CommitRecord, bool, error) {
	if s.pos >= len(s.hashes) {
		return nil, false, nil
	}
	hash := s.hashes[s.pos]
	s.pos++

	c, err := s.owner.repo.CommitObject(hash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get commit object %s: %w", hash, err)
	}

	record, err := s.owner.buildRecord(ctx, c)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// buildRecord collects the version-control facts of c. Line statistics are
// taken against the first parent. Merge commits get no DMM values.
func (r *GoGitRepository) buildRecord(ctx context.Context, c *object.Commit) (*domain.CommitRecord, error) {
	record := &domain.CommitRecord{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Date:    c.Committer.When,
		Message: domain.NormalizeLineEndings(strings.TrimSpace(c.Message)),
		IsMerge: c.NumParents() > 1,
	}

	stats, err := c.StatsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats for %s: %w", record.Hash, err)
	}
	for _, fs := range stats {
		record.Insertions += fs.Addition
		record.Deletions += fs.Deletion
	}
	record.LinesChanged = record.Insertions + record.Deletions

	if r.dmm != nil && !record.IsMerge {
		changes, err := fileChanges(ctx, c)
		if err != nil {
			return nil, err
		}
		res := r.dmm.Compute(ctx, changes)
		record.DMMUnitSize = res.UnitSize
		record.DMMUnitComplexity = res.UnitComplexity
		record.DMMUnitInterfacing = res.UnitInterfacing
	}

	return record, nil
}

// diffWithFirstParent returns the tree changes of c against its first parent,
// or against the empty tree for a root commit.
func diffWithFirstParent(ctx context.Context, c *object.Commit) (object.Changes, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of %s: %w", c.Hash, err)
	}

	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to get parent of %s: %w", c.Hash, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to get tree of %s: %w", parent.Hash, err)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", c.Hash, err)
	}
	return changes, nil
}

func touchesExtensions(ctx context.Context, c *object.Commit, extensions []string) (bool, error) {
	changes, err := diffWithFirstParent(ctx, c)
	if err != nil {
		return false, err
	}
	for _, change := range changes {
		if hasExtension(changePath(change), extensions) {
			return true, nil
		}
	}
	return false, nil
}

// fileChanges loads before/after contents of every changed file for DMM.
func fileChanges(ctx context.Context, c *object.Commit) ([]dmm.FileChange, error) {
	changes, err := diffWithFirstParent(ctx, c)
	if err != nil {
		return nil, err
	}

	out := make([]dmm.FileChange, 0, len(changes))
	for _, change := range changes {
		from, to, err := change.Files()
		if err != nil {
			return nil, fmt.Errorf("failed to load files of %s: %w", c.Hash, err)
		}

		fc := dmm.FileChange{Path: changePath(change)}
		if from != nil {
			content, err := from.Contents()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s at parent of %s: %w", from.Name, c.Hash, err)
			}
			fc.Before = []byte(content)
		}
		if to != nil {
			content, err := to.Contents()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s at %s: %w", to.Name, c.Hash, err)
			}
			fc.After = []byte(content)
		}
		out = append(out, fc)
	}
	return out, nil
}

func changePath(change *object.Change) string {
	if change.To.Name != "" {
		return change.To.Name
	}
	return change.From.Name
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
