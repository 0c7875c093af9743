// Package revision derives one authoritative set of review fields for a range
// of commits.
//
// [Resolver.Resolve] parses every commit message, folds the results in commit
// order, renders the folded fields back into a message and re-parses that
// message. Only the re-parsed outcome is returned as authoritative, so the
// fields always match what the review service itself would derive from the
// message it is eventually given.
//
// The package performs no I/O of its own and never logs; every collaborator
// is injected.
package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/users"
)

// CommitRef is one commit of a range.
type CommitRef struct {
	Hash      string `json:"hash"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Committer string `json:"committer"`
}

// Message returns the text submitted to the parser for this commit.
func (c CommitRef) Message() string {
	return c.Subject + "\n\n" + c.Body
}

// CommitSource enumerates the commits between two refs, oldest first.
type CommitSource interface {
	RangeCommits(ctx context.Context, base, branch string) ([]CommitRef, error)
}

// Parser turns free text into fields.
type Parser interface {
	ParseCommitMessage(ctx context.Context, corpus string) (fields.ParseOutcome, error)
}

// Directory resolves contact strings and PHIDs against registered users.
type Directory interface {
	UsersFromEmails(ctx context.Context, emails []string) ([]users.Lookup, error)
	UsernamesFromPHIDs(ctx context.Context, phids []string) ([]string, error)
}

// Composer renders fields and user names into text Parser accepts.
type Composer interface {
	Compose(fs fields.FieldSet, reviewers, ccs []string) string
}

// Sentinel errors for errors.Is.
var (
	ErrEmptyRange    = errors.New("empty commit range")
	ErrUnknownAuthor = errors.New("first committer is not a registered user")
)

// EmptyRangeError is returned when there are no commits to resolve.
type EmptyRangeError struct {
	Base, Branch string
}

func (e *EmptyRangeError) Error() string {
	if e.Base == "" && e.Branch == "" {
		return ErrEmptyRange.Error()
	}
	return fmt.Sprintf("%s: %s..%s", ErrEmptyRange, e.Base, e.Branch)
}

func (e *EmptyRangeError) Is(target error) bool { return target == ErrEmptyRange }

// UnknownAuthorError is returned when the first committer of a range does
// not resolve to a registered user.
type UnknownAuthorError struct {
	Email string
	Hash  string
}

func (e *UnknownAuthorError) Error() string {
	return fmt.Sprintf("%s: %s (commit %s)", ErrUnknownAuthor, e.Email, e.Hash)
}

func (e *UnknownAuthorError) Is(target error) bool { return target == ErrUnknownAuthor }

// CommitResult records how one commit's message parsed.
type CommitResult struct {
	Hash    string              `json:"hash"`
	Outcome fields.ParseOutcome `json:"outcome"`
}

// Revision is the resolved description of a range.
type Revision struct {
	Author      users.Identity      `json:"author"`
	AuthorEmail string              `json:"authorEmail"`
	Commits     []CommitResult      `json:"commits"`
	Message     string              `json:"message"`
	Outcome     fields.ParseOutcome `json:"outcome"`
}

// Resolver wires the collaborators of the field pipeline together.
type Resolver struct {
	Parser    Parser
	Directory Directory
	Composer  Composer
	// Policy defaults to fields.AppendPolicy.
	Policy fields.MergePolicy
}

// ResolveRange fetches base..branch from src and resolves it.
func (r *Resolver) ResolveRange(ctx context.Context, src CommitSource, base, branch string) (*Revision, error) {
	commits, err := src.RangeCommits(ctx, base, branch)
	if err != nil {
		return nil, fmt.Errorf("listing commits %s..%s: %w", base, branch, err)
	}
	if len(commits) == 0 {
		return nil, &EmptyRangeError{Base: base, Branch: branch}
	}
	return r.Resolve(ctx, commits)
}

// Resolve produces the authoritative fields for commits, which must be in
// range order.
func (r *Resolver) Resolve(ctx context.Context, commits []CommitRef) (*Revision, error) {
	if len(commits) == 0 {
		return nil, &EmptyRangeError{}
	}

	author, err := r.primaryAuthor(ctx, commits[0])
	if err != nil {
		return nil, err
	}

	rev := &Revision{
		Author:      author,
		AuthorEmail: commits[0].Committer,
		Commits:     make([]CommitResult, 0, len(commits)),
	}

	acc := fields.NewAccumulator(r.policy())
	for _, c := range commits {
		out, err := r.Parser.ParseCommitMessage(ctx, c.Message())
		if err != nil {
			return nil, fmt.Errorf("parsing message of %s: %w", c.Hash, err)
		}
		rev.Commits = append(rev.Commits, CommitResult{Hash: c.Hash, Outcome: out})
		acc = acc.Add(out.Fields)
	}
	folded, _ := acc.Result()

	reviewers, err := r.names(ctx, folded.Reviewers)
	if err != nil {
		return nil, fmt.Errorf("resolving reviewers: %w", err)
	}
	ccs, err := r.names(ctx, folded.CCs)
	if err != nil {
		return nil, fmt.Errorf("resolving ccs: %w", err)
	}

	rev.Message = r.Composer.Compose(folded, reviewers, ccs)
	rev.Outcome, err = r.Parser.ParseCommitMessage(ctx, rev.Message)
	if err != nil {
		return nil, fmt.Errorf("parsing combined message: %w", err)
	}
	return rev, nil
}

func (r *Resolver) primaryAuthor(ctx context.Context, first CommitRef) (users.Identity, error) {
	found, err := r.Directory.UsersFromEmails(ctx, []string{first.Committer})
	if err != nil {
		return users.Identity{}, fmt.Errorf("resolving committer %s: %w", first.Committer, err)
	}
	if len(found) == 0 || !found[0].Found {
		return users.Identity{}, &UnknownAuthorError{Email: first.Committer, Hash: first.Hash}
	}
	return found[0].Identity, nil
}

func (r *Resolver) names(ctx context.Context, phids []string) ([]string, error) {
	if len(phids) == 0 {
		return nil, nil
	}
	return r.Directory.UsernamesFromPHIDs(ctx, phids)
}

func (r *Resolver) policy() fields.MergePolicy {
	if r.Policy == nil {
		return fields.AppendPolicy{}
	}
	return r.Policy
}
