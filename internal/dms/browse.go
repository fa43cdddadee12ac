package dms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-discovery/internal/upnp"
)

// BrowseMedia lists the children of whatever identifier addresses. An
// empty identifier shows the server root.
func (s *Source) BrowseMedia(ctx context.Context, identifier string) (*MediaItem, error) {
	action, payload := ParseIdentifier(identifier)
	switch action {
	case ActionBrowseRoot:
		return s.BrowseObject(ctx, RootObjectID)
	case ActionObject:
		return s.BrowseObject(ctx, payload)
	case ActionPath:
		return s.BrowsePath(ctx, payload)
	case ActionSearch:
		return s.BrowseSearch(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnresolvable, identifier)
	}
}

// ResolveMedia resolves identifier to a single playable item.
func (s *Source) ResolveMedia(ctx context.Context, identifier string) (*MediaItem, error) {
	action, payload := ParseIdentifier(identifier)
	switch action {
	case ActionObject:
		return s.ResolveObject(ctx, payload)
	case ActionPath:
		return s.ResolvePath(ctx, payload)
	case ActionSearch:
		return s.ResolveSearch(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: empty identifier", ErrUnresolvable)
	}
}

// BrowseObject returns objectID's metadata together with its direct
// children.
func (s *Source) BrowseObject(ctx context.Context, objectID string) (*MediaItem, error) {
	cd, err := s.contentDirectory()
	if err != nil {
		return nil, err
	}

	object, err := cd.BrowseMetadataObject(ctx, objectID, browseFilter)
	if err != nil {
		return nil, s.translateErr(err)
	}
	children, err := cd.Browse(ctx, objectID, upnp.BrowseDirectChildren, browseFilter, 0, 0, s.sortCriteria)
	if err != nil {
		return nil, s.translateErr(err)
	}

	item := s.mediaItem(*object, false)
	item.Children = make([]MediaItem, 0, len(children.Objects))
	for _, child := range children.Objects {
		item.Children = append(item.Children, s.mediaItem(child, false))
	}
	if len(item.Children) > 0 {
		item.CanExpand = true
	}
	return &item, nil
}

// BrowsePath walks path to an object and browses it.
func (s *Source) BrowsePath(ctx context.Context, path string) (*MediaItem, error) {
	objectID, err := s.resolvePathToObjectID(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.BrowseObject(ctx, objectID)
}

// BrowseSearch lists the results of a ContentDirectory search expression
// as a synthetic, non-playable container.
func (s *Source) BrowseSearch(ctx context.Context, query string) (*MediaItem, error) {
	cd, err := s.contentDirectory()
	if err != nil {
		return nil, err
	}
	result, err := cd.Search(ctx, RootObjectID, query, browseFilter, 0, 0, "")
	if err != nil {
		return nil, s.translateErr(err)
	}

	item := MediaItem{
		Identifier: s.ID() + pathSep + searchFlag + query,
		SourceID:   s.ID(),
		Title:      "Search results",
		CanExpand:  true,
	}
	item.Children = make([]MediaItem, 0, len(result.Objects))
	for _, object := range result.Objects {
		item.Children = append(item.Children, s.mediaItem(object, false))
	}
	return &item, nil
}

// ResolveObject fetches objectID's full metadata with its playable URL.
func (s *Source) ResolveObject(ctx context.Context, objectID string) (*MediaItem, error) {
	cd, err := s.contentDirectory()
	if err != nil {
		return nil, err
	}
	object, err := cd.BrowseMetadataObject(ctx, objectID, resolveFilter)
	if err != nil {
		return nil, s.translateErr(err)
	}
	item := s.mediaItem(*object, true)
	return &item, nil
}

// ResolvePath walks path to an object and resolves it.
func (s *Source) ResolvePath(ctx context.Context, path string) (*MediaItem, error) {
	objectID, err := s.resolvePathToObjectID(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.ResolveObject(ctx, objectID)
}

// ResolveSearch resolves a search expression to its single playable
// result. Ambiguous searches resolve to the first match with a warning.
func (s *Source) ResolveSearch(ctx context.Context, query string) (*MediaItem, error) {
	cd, err := s.contentDirectory()
	if err != nil {
		return nil, err
	}
	result, err := cd.Search(ctx, RootObjectID, query, resolveFilter, 0, 1, "")
	if err != nil {
		return nil, s.translateErr(err)
	}
	if len(result.Objects) == 0 {
		return nil, fmt.Errorf("%w: nothing found for %q", ErrUnresolvable, query)
	}
	if result.TotalMatches > 1 {
		s.logger.Warn("ambiguous search result, using first", "source_id", s.ID(), "query", query, "total_matches", result.TotalMatches)
	}
	item := s.mediaItem(result.Objects[0], true)
	return &item, nil
}

// resolvePathToObjectID walks a title path from the root, one segment at a
// time. Each segment is first looked up with a server-side search; servers
// that reject the search fall back to listing direct children and matching
// the title case-insensitively.
func (s *Source) resolvePathToObjectID(ctx context.Context, path string) (string, error) {
	cd, err := s.contentDirectory()
	if err != nil {
		return "", err
	}

	parentID := RootObjectID
	for _, segment := range strings.Split(path, pathSep) {
		if segment == "" {
			continue
		}
		nextID, err := s.resolveSegment(ctx, cd, parentID, segment)
		if err != nil {
			return "", err
		}
		parentID = nextID
	}
	return parentID, nil
}

func (s *Source) resolveSegment(ctx context.Context, cd *upnp.ContentDirectory, parentID, segment string) (string, error) {
	criteria := fmt.Sprintf(`@parentID="%s" and dc:title="%s"`, escQuote(parentID), escQuote(segment))
	result, err := cd.Search(ctx, parentID, criteria, pathFilter, 0, 1, "")
	switch {
	case err == nil:
		if result.TotalMatches > 1 {
			return "", fmt.Errorf("%w: too many items found for %q in %q", ErrUnresolvable, segment, parentID)
		}
		if len(result.Objects) > 0 {
			return result.Objects[0].ID, nil
		}
		// Zero results: the server may not index this container; fall back
		// to browsing.
	default:
		var actionErr *upnp.ActionError
		if !errors.As(err, &actionErr) {
			return "", s.translateErr(err)
		}
		if actionErr.Code == upnp.CodeNoSuchContainer {
			return "", fmt.Errorf("%w: no such container %q", ErrUnresolvable, parentID)
		}
		// Servers without search support reject the query; list the
		// container instead.
		s.logger.Debug("path search failed, falling back to browse", "source_id", s.ID(), "segment", segment, "error", err)
	}

	children, err := cd.Browse(ctx, parentID, upnp.BrowseDirectChildren, pathFilter, 0, 0, "")
	if err != nil {
		return "", s.translateErr(err)
	}
	if len(children.Objects) == 0 {
		return "", fmt.Errorf("%w: no contents for %q in %q", ErrUnresolvable, segment, parentID)
	}
	for _, child := range children.Objects {
		if strings.EqualFold(child.Title, segment) {
			return child.ID, nil
		}
	}
	return "", fmt.Errorf("%w: nothing found for %q in %q", ErrUnresolvable, segment, parentID)
}
