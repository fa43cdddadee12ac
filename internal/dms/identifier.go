package dms

import "strings"

// RootObjectID is the ContentDirectory root container.
const RootObjectID = "0"

// Identifier mode flags.
const (
	objectFlag = ":"
	searchFlag = "?"
	pathSep    = "/"
)

// Action selects how an identifier payload is interpreted.
type Action int

const (
	// ActionBrowseRoot is an empty identifier: show the server root.
	ActionBrowseRoot Action = iota
	// ActionObject addresses a ContentDirectory object ID directly.
	ActionObject
	// ActionPath walks a title path one segment at a time.
	ActionPath
	// ActionSearch runs a ContentDirectory search expression.
	ActionSearch
)

func (a Action) String() string {
	switch a {
	case ActionBrowseRoot:
		return "browse-root"
	case ActionObject:
		return "object"
	case ActionPath:
		return "path"
	case ActionSearch:
		return "search"
	default:
		return "unknown"
	}
}

// ParseIdentifier splits an identifier (already stripped of its source-id
// prefix) into an action and payload. A payload without a mode flag is
// treated as a path with any leading separators removed.
func ParseIdentifier(identifier string) (Action, string) {
	switch {
	case identifier == "":
		return ActionBrowseRoot, ""
	case strings.HasPrefix(identifier, objectFlag):
		return ActionObject, identifier[1:]
	case strings.HasPrefix(identifier, searchFlag):
		return ActionSearch, identifier[1:]
	default:
		return ActionPath, strings.TrimLeft(identifier, pathSep)
	}
}

// escQuote backslash-escapes backslashes and double quotes for embedding
// in a quoted ContentDirectory search criteria string.
func escQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
