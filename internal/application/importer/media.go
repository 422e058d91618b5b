package importer

import (
	"context"
	"fmt"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// imageSources splits a record's image URLs into the primary image and the
// gallery images.
func imageSources(entity record.EntityType, fields record.Fields) (string, []string) {
	switch entity {
	case record.EntityListing:
		items, _ := fields[mapping.FieldImageURLs].([]any)
		var urls []string
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
		if len(urls) == 0 {
			return "", nil
		}
		return urls[0], urls[1:]
	case record.EntityAgent:
		photo, _ := fields.String(mapping.FieldPhotoURL)
		return photo, nil
	}
	return "", nil
}

func altText(entity record.EntityType, fields record.Fields) string {
	key := mapping.FieldTitle
	if entity == record.EntityAgent {
		key = mapping.FieldDisplayName
	}
	s, _ := fields.String(key)
	return s
}

// syncMedia downloads images the record does not hold yet. URLs already
// recorded as the primary image or in the gallery are skipped. Every
// download gets one attempt and failures become warnings.
func (im *Importer) syncMedia(ctx context.Context, a *attempt) {
	if im.media == nil {
		return
	}
	primary, extra := imageSources(a.entity, a.current)
	if primary == "" && len(extra) == 0 {
		return
	}

	alt := altText(a.entity, a.current)
	gallery := record.GalleryFromField(a.current[record.FieldGallery])
	currentPrimary, _ := a.current.String(record.FieldPrimaryImageSource)
	known := func(url string) bool {
		return url == currentPrimary || gallery.Has(url)
	}

	if primary != "" && !known(primary) {
		if id, ok := im.download(ctx, a, primary, alt); ok {
			if err := im.store.SetPrimaryMedia(ctx, a.id, id); err != nil {
				a.warn(fmt.Sprintf("setting primary image: %v", err))
			} else if err := im.store.Update(ctx, a.id, record.Fields{record.FieldPrimaryImageSource: primary}); err != nil {
				a.warn(fmt.Sprintf("recording primary image: %v", err))
			} else {
				currentPrimary = primary
				a.current[record.FieldPrimaryImageSource] = primary
				im.markUpdated(a, record.FieldPrimaryImageSource)
			}
		}
	}

	added := false
	for _, url := range extra {
		if known(url) {
			continue
		}
		id, ok := im.download(ctx, a, url, alt)
		if !ok {
			continue
		}
		gallery, _ = gallery.Add(record.GalleryItem{MediaID: id, SourceURL: url})
		added = true
	}
	if !added {
		return
	}
	field := gallery.Field()
	if err := im.store.Update(ctx, a.id, record.Fields{record.FieldGallery: field}); err != nil {
		a.warn(fmt.Sprintf("recording gallery: %v", err))
		return
	}
	a.current[record.FieldGallery] = field
	im.markUpdated(a, record.FieldGallery)
}

func (im *Importer) download(ctx context.Context, a *attempt, url, alt string) (record.MediaID, bool) {
	m, err := im.media.Fetch(ctx, url)
	if err != nil {
		im.observer.MediaFailed(ctx, a.entity, url, err)
		a.warn(fmt.Sprintf("%s: %s: %v", domainerrors.ErrMediaDownload, url, err))
		return "", false
	}
	id, err := im.store.AttachMedia(ctx, a.id, m.Data, alt)
	if err != nil {
		a.warn(fmt.Sprintf("attaching %s: %v", url, err))
		return "", false
	}
	im.observer.MediaStored(a.entity)
	return id, true
}
