// Package github reads lecture files for a course from a directory in a
// GitHub repository.
package github

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/google/go-github/v81/github"

	"github.com/bull/coursemap/internal/extract"
	"github.com/bull/coursemap/internal/indexer"
)

// Fetcher lists and downloads lecture files below basePath.
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
}

// NewFetcher creates a new lecture fetcher
func NewFetcher(client *Client, owner, repo, basePath string) *Fetcher {
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}
}

// ListLectures returns supported lecture files ordered by session order.
// Session order comes from the number in the file name; when no file is
// numbered, files are numbered in name order.
func (f *Fetcher) ListLectures(ctx context.Context) ([]indexer.LectureRef, error) {
	paths, err := f.listRecursive(ctx, f.basePath)
	if err != nil {
		return nil, err
	}
	return OrderLectures(paths), nil
}

// OrderLectures assigns session orders to lecture paths. Numbered files keep
// their number and unnumbered ones are dropped, unless none is numbered.
func OrderLectures(paths []string) []indexer.LectureRef {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var refs []indexer.LectureRef
	for _, p := range sorted {
		if order, ok := indexer.ParseSessionOrder(p); ok {
			refs = append(refs, indexer.LectureRef{Path: p, SessionOrder: order, Title: indexer.TitleFromFileName(p)})
		}
	}
	if len(refs) == 0 {
		for i, p := range sorted {
			refs = append(refs, indexer.LectureRef{Path: p, SessionOrder: i + 1, Title: indexer.TitleFromFileName(p)})
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].SessionOrder < refs[j].SessionOrder })
	return refs
}

// listRecursive traverses directories to find all supported lecture files
func (f *Fetcher) listRecursive(ctx context.Context, dir string) ([]string, error) {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}

	var files []string
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemPath := path.Join(dir, *item.Name)

		switch *item.Type {
		case "file":
			if extract.Supported(*item.Name) {
				files = append(files, itemPath)
			}
		case "dir":
			sub, err := f.listRecursive(ctx, itemPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// FetchLecture downloads a lecture file. DownloadContents is used so files
// over the 1MB contents API limit, such as slide PDFs, still work.
func (f *Fetcher) FetchLecture(ctx context.Context, ref indexer.LectureRef) ([]byte, error) {
	rc, _, err := f.client.Repositories.DownloadContents(ctx, f.owner, f.repo, ref.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ref.Path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.Path, err)
	}
	return data, nil
}

// Revision retrieves the SHA of the most recent commit affecting the lecture directory
func (f *Fetcher) Revision(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo,
		&github.CommitsListOptions{
			Path:        f.basePath,
			ListOptions: github.ListOptions{PerPage: 1},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}
	return *commits[0].SHA, nil
}
