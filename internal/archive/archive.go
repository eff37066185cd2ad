// Package archive stores fetched pages under content-addressed keys.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

const contentType = "text/html; charset=utf-8"

// Archiver writes pages to <prefix>/<location_id>/<sha256>.html.
type Archiver struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
}

// New builds an Archiver.
func New(blobs crawler.BlobStore, hasher crawler.Hasher, prefix string) (*Archiver, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	return &Archiver{blobs: blobs, hasher: hasher, prefix: prefix}, nil
}

// Key returns the object key for body.
func (a *Archiver) Key(locationID int64, body []byte) (string, error) {
	sum, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	return path.Join(a.prefix, strconv.FormatInt(locationID, 10), sum+".html"), nil
}

// Save stores body and returns its URI.
func (a *Archiver) Save(ctx context.Context, locationID int64, body []byte) (string, error) {
	key, err := a.Key(locationID, body)
	if err != nil {
		return "", err
	}
	uri, err := a.blobs.PutObject(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("archive page: %w", err)
	}
	return uri, nil
}
