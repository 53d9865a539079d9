// Package mailpart models a message body as a tree of parts and splits it
// into the primary text/HTML bodies and the remaining assets.
package mailpart

import "strings"

// Media types the flattener inspects.
const (
	TypeTextPlain            = "text/plain"
	TypeTextHTML             = "text/html"
	TypeMultipartRelated     = "multipart/related"
	TypeMultipartAlternative = "multipart/alternative"
)

// Part is a node of a message body tree. It is implemented by *Leaf and
// *Container only.
type Part interface {
	// Type returns the lower-cased media type without parameters.
	Type() string

	isPart()
}

// Leaf is a part that carries content.
type Leaf struct {
	MediaType string

	// Body is the decoded content. It is empty when the provider only
	// returned an AttachmentID.
	Body []byte

	// Filename is set for attachments and inline media.
	Filename string

	// AttachmentID references content that must be fetched separately.
	AttachmentID string
}

// Type returns the leaf's media type.
func (l *Leaf) Type() string { return normalizeType(l.MediaType) }

func (*Leaf) isPart() {}

// Container is a multipart node holding ordered children.
type Container struct {
	MediaType string
	Children  []Part
}

// Type returns the container's media type.
func (c *Container) Type() string { return normalizeType(c.MediaType) }

func (*Container) isPart() {}

// Content returns the raw content of p. Containers have none.
func Content(p Part) string {
	if l, ok := p.(*Leaf); ok {
		return string(l.Body)
	}
	return ""
}

// TopLevel returns the list of parts a message body is flattened from: the
// children of a container root, or the root itself for single-part messages.
func TopLevel(root Part) []Part {
	switch r := root.(type) {
	case *Container:
		return r.Children
	case *Leaf:
		return []Part{r}
	default:
		return nil
	}
}

func normalizeType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
