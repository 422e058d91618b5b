package ports

import "context"

// Media is one downloaded asset.
type Media struct {
	SourceURL   string
	ContentType string
	Data        []byte
}

// MediaFetcher downloads remote media. Each call is a single attempt.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (Media, error)
}
