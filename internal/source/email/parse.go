package email

import (
	"bytes"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/nhle/mailnote/internal/mailpart"
)

// parseMessage reads a raw RFC 5322 message into its header list and part
// tree. Text parts are decoded from their transfer encoding and charset.
func parseMessage(raw []byte) ([]mailpart.Header, mailpart.Part, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if e == nil {
		return nil, nil, fmt.Errorf("reading message: %w", err)
	}
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, nil, fmt.Errorf("reading message: %w", err)
	}

	part, err := convertEntity(e)
	if err != nil {
		return nil, nil, err
	}
	return readHeaders(&e.Header), part, nil
}

func readHeaders(h *message.Header) []mailpart.Header {
	var headers []mailpart.Header
	fields := h.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		headers = append(headers, mailpart.Header{Name: fields.Key(), Value: v})
	}
	return headers
}

func convertEntity(e *message.Entity) (mailpart.Part, error) {
	mediaType, params, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = mailpart.TypeTextPlain
	}

	if mr := e.MultipartReader(); mr != nil {
		c := &mailpart.Container{MediaType: mediaType}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if p == nil || (err != nil && !message.IsUnknownCharset(err)) {
				return nil, fmt.Errorf("reading %s part: %w", mediaType, err)
			}

			child, err := convertEntity(p)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
		return c, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", mediaType, err)
	}

	return &mailpart.Leaf{
		MediaType: mediaType,
		Body:      body,
		Filename:  partFilename(&e.Header, params),
	}, nil
}

// partFilename prefers the Content-Disposition filename and falls back to
// the legacy Content-Type name parameter.
func partFilename(h *message.Header, typeParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return typeParams["name"]
}
