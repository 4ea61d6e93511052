package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// FeedName identifies a synchronized account.
type FeedName string

const (
	FeedAmexGold              FeedName = "AMEX_GOLD"
	FeedAmexPlatinum          FeedName = "AMEX_PLATINUM"
	FeedChaseSapphire         FeedName = "CHASE_SAPPHIRE"
	FeedChaseChecking         FeedName = "CHASE_CHECKING"
	FeedChaseFreedomUnlimited FeedName = "CHASE_FREEDOM_UNLIMITED"
	FeedChaseFreedom          FeedName = "CHASE_FREEDOM"
)

// ErrUnmappedFeed is returned when a file cannot be assigned a feed name.
var ErrUnmappedFeed = errors.New("no feed name matches file")

// Feed is a single transaction source. Implemented by FileFeed and RemoteFeed only.
type Feed interface {
	BookmarkName() string
	isFeed()
}

// FileFeed is a local CSV export.
type FileFeed struct {
	Path string
	Name FeedName
}

// BookmarkName returns the feed name resolved from the file name.
func (f FileFeed) BookmarkName() string { return string(f.Name) }

func (FileFeed) isFeed() {}

func (f FileFeed) String() string { return f.Path }

// RemoteFeed is an account on the remote transaction API.
type RemoteFeed struct {
	AccountID   string
	AccessToken string
	Name        FeedName
}

// BookmarkName returns the configured feed name.
func (f RemoteFeed) BookmarkName() string { return string(f.Name) }

func (RemoteFeed) isFeed() {}

// String omits the access token.
func (f RemoteFeed) String() string { return fmt.Sprintf("%s (%s)", f.Name, f.AccountID) }

// FilePattern maps a file name fragment to a feed name.
type FilePattern struct {
	Contains string   `yaml:"contains"`
	Name     FeedName `yaml:"name"`
}

// DefaultFilePatterns returns the built-in file name table.
func DefaultFilePatterns() []FilePattern {
	return []FilePattern{
		{Contains: "gold", Name: FeedAmexGold},
		{Contains: "plat", Name: FeedAmexPlatinum},
		{Contains: "chase0000", Name: FeedChaseSapphire},
		{Contains: "chase2002", Name: FeedChaseChecking},
		{Contains: "chase3149", Name: FeedChaseFreedomUnlimited},
		{Contains: "chase7959", Name: FeedChaseFreedom},
	}
}

// ResolveFeedName picks the first pattern contained in the lowercase base name of path.
func ResolveFeedName(path string, patterns []FilePattern) (FeedName, error) {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, p := range patterns {
		if p.Contains != "" && strings.Contains(base, strings.ToLower(p.Contains)) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnmappedFeed, path)
}
