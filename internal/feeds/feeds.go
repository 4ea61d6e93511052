package feeds

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banksync/banksync/internal/model"
)

// ErrInvalidFeed is returned for feeds file entries missing required fields.
var ErrInvalidFeed = errors.New("invalid feed")

// Scan returns a FileFeed for each .csv file under dir, walking subdirectories.
// Every file must resolve to a feed name through patterns. A missing dir yields no feeds.
func Scan(dir string, patterns []model.FilePattern) ([]model.Feed, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".csv") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading import dir: %w", err)
	}
	sort.Strings(files)

	feeds := make([]model.Feed, 0, len(files))
	for _, f := range files {
		name, err := model.ResolveFeedName(f, patterns)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, model.FileFeed{Path: f, Name: name})
	}
	return feeds, nil
}

type remoteEntry struct {
	Name        string `yaml:"name"`
	AccountID   string `yaml:"account_id"`
	AccessToken string `yaml:"access_token"`
}

// LoadRemote reads remote feeds from a YAML list. ${VAR} references in
// access tokens and account ids are expanded from the environment.
func LoadRemote(path string) ([]model.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feeds file: %w", err)
	}
	var entries []remoteEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing feeds file: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	feeds := make([]model.Feed, 0, len(entries))
	for i, e := range entries {
		feed := model.RemoteFeed{
			Name:        model.FeedName(strings.TrimSpace(e.Name)),
			AccountID:   os.ExpandEnv(e.AccountID),
			AccessToken: os.ExpandEnv(e.AccessToken),
		}
		switch {
		case feed.Name == "":
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidFeed, i+1)
		case feed.AccountID == "":
			return nil, fmt.Errorf("%w: %s has no account_id", ErrInvalidFeed, feed.Name)
		case feed.AccessToken == "":
			return nil, fmt.Errorf("%w: %s has no access_token", ErrInvalidFeed, feed.Name)
		case seen[string(feed.Name)]:
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidFeed, feed.Name)
		}
		seen[string(feed.Name)] = true
		feeds = append(feeds, feed)
	}
	return feeds, nil
}
