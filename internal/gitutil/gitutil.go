// Package gitutil collects the small set of go-git helpers shared by every
// component that touches the repository directly: opening the repo the
// same way regardless of worktree, and resolving the committing user from
// local config, then global config, then a last-resort default.
package gitutil

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	"github.com/dotsetlabs/whogitit/internal/paths"
)

// OpenRepository opens the repository rooted at the resolved repo root,
// with linked-worktree support enabled.
func OpenRepository() (*git.Repository, error) {
	repoRoot, err := paths.RepoRoot()
	if err != nil {
		repoRoot = "."
	}

	repo, err := git.PlainOpenWithOptions(repoRoot, &git.PlainOpenOptions{
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return repo, nil
}

// Author identifies a git user.
type Author struct {
	Name  string
	Email string
}

// CurrentAuthor resolves user.name/user.email from the repo's local config,
// falling back to the global config, and finally to a last-resort default
// so callers never have to special-case an unconfigured identity.
func CurrentAuthor(repo *git.Repository) Author {
	var name, email string

	if cfg, err := repo.Config(); err == nil {
		name = cfg.User.Name
		email = cfg.User.Email
	}

	if name == "" || email == "" {
		if globalCfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope); err == nil {
			if name == "" {
				name = globalCfg.User.Name
			}
			if email == "" {
				email = globalCfg.User.Email
			}
		}
	}

	if name == "" {
		name = "Unknown"
	}
	if email == "" {
		email = "unknown@local"
	}

	return Author{Name: name, Email: email}
}
