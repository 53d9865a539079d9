package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/mailnote/internal/mailpart"
	"github.com/nhle/mailnote/internal/source"
)

func convertThread(t *gmailapi.Thread) (*source.Thread, error) {
	thread := &source.Thread{
		ID:       t.Id,
		Messages: make([]source.Message, 0, len(t.Messages)),
	}
	for _, m := range t.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return nil, err
		}
		thread.Messages = append(thread.Messages, msg)
	}
	return thread, nil
}

func convertMessage(m *gmailapi.Message) (source.Message, error) {
	msg := source.Message{
		ID:       m.Id,
		LabelIDs: m.LabelIds,
	}
	if m.Payload == nil {
		return msg, nil
	}

	for _, h := range m.Payload.Headers {
		msg.Headers = append(msg.Headers, mailpart.Header{Name: h.Name, Value: h.Value})
	}

	payload, err := convertPart(m.Payload)
	if err != nil {
		return source.Message{}, fmt.Errorf("message %s: %w", m.Id, err)
	}
	msg.Payload = payload
	return msg, nil
}

// convertPart maps the API's loosely typed part into the part tree.
// Anything with a multipart media type becomes a container.
func convertPart(p *gmailapi.MessagePart) (mailpart.Part, error) {
	if strings.HasPrefix(strings.ToLower(p.MimeType), "multipart/") {
		c := &mailpart.Container{MediaType: p.MimeType}
		for _, child := range p.Parts {
			cp, err := convertPart(child)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, cp)
		}
		return c, nil
	}

	leaf := &mailpart.Leaf{
		MediaType: p.MimeType,
		Filename:  p.Filename,
	}
	if p.Body != nil {
		leaf.AttachmentID = p.Body.AttachmentId
		if p.Body.Data != "" {
			data, err := decodeData(p.Body.Data)
			if err != nil {
				return nil, fmt.Errorf("decoding %s part: %w", p.MimeType, err)
			}
			leaf.Body = data
		}
	}
	return leaf, nil
}

// decodeData decodes the API's base64url payloads, padded or not.
func decodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
