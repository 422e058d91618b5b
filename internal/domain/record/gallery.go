package record

// GalleryItem references one downloaded media asset by its source URL.
type GalleryItem struct {
	MediaID   MediaID
	SourceURL string
}

// Gallery is the ordered, URL-deduplicated list of downloaded images owned by a record.
type Gallery []GalleryItem

// GalleryFromField decodes the stored gallery field. Malformed entries are skipped.
func GalleryFromField(v any) Gallery {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var g Gallery
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["media_id"].(string)
		src, _ := m["source_url"].(string)
		if id == "" || src == "" {
			continue
		}
		g = append(g, GalleryItem{MediaID: MediaID(id), SourceURL: src})
	}
	return g
}

// Field encodes the gallery for storage as a single composite field.
func (g Gallery) Field() []any {
	out := make([]any, 0, len(g))
	for _, item := range g {
		out = append(out, map[string]any{
			"media_id":   string(item.MediaID),
			"source_url": item.SourceURL,
		})
	}
	return out
}

// Has reports whether an asset from sourceURL was already downloaded.
func (g Gallery) Has(sourceURL string) bool {
	for _, item := range g {
		if item.SourceURL == sourceURL {
			return true
		}
	}
	return false
}

// Add appends an item unless its source URL is already present.
func (g Gallery) Add(item GalleryItem) (Gallery, bool) {
	if g.Has(item.SourceURL) {
		return g, false
	}
	return append(g, item), true
}

// Remove drops the item with the given media id.
func (g Gallery) Remove(id MediaID) (Gallery, bool) {
	for i, item := range g {
		if item.MediaID == id {
			out := make(Gallery, 0, len(g)-1)
			out = append(out, g[:i]...)
			return append(out, g[i+1:]...), true
		}
	}
	return g, false
}
