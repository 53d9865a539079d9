package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/nhle/mailnote/internal/mailpart"
	"github.com/nhle/mailnote/internal/source"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// newTestClient starts a fake Gmail API server. Requests are answered by
// handler keyed on "METHOD path".
func newTestClient(t *testing.T, handler map[string]http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handler[r.Method+" "+r.URL.Path]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	svc, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return NewWithService(svc, "me", zap.NewNop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestGetThread(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"GET /gmail/v1/users/me/threads/t1": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("format"); got != "full" {
				t.Errorf("format = %q, want full", got)
			}
			writeJSON(t, w, map[string]any{
				"id": "t1",
				"messages": []any{
					map[string]any{
						"id":       "m1",
						"labelIds": []string{"INBOX", "Label_9"},
						"payload": map[string]any{
							"mimeType": "multipart/mixed",
							"headers": []any{
								map[string]string{"name": "Subject", "value": "Invoice"},
							},
							"parts": []any{
								map[string]any{
									"mimeType": "multipart/alternative",
									"parts": []any{
										map[string]any{"mimeType": "text/plain", "body": map[string]any{"data": b64("plain")}},
										map[string]any{"mimeType": "text/html", "body": map[string]any{"data": b64("<p>html</p>")}},
									},
								},
								map[string]any{
									"mimeType": "application/pdf",
									"filename": "invoice.pdf",
									"body":     map[string]any{"attachmentId": "att-1", "size": 42},
								},
							},
						},
					},
				},
			})
		},
	})

	thread, err := c.GetThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(thread.Messages) != 1 {
		t.Fatalf("got %d messages", len(thread.Messages))
	}

	msg := thread.Messages[0]
	if got := mailpart.HeaderValue(msg.Headers, "subject"); got != "Invoice" {
		t.Errorf("Subject = %q", got)
	}
	if len(msg.LabelIDs) != 2 || msg.LabelIDs[1] != "Label_9" {
		t.Errorf("LabelIDs = %v", msg.LabelIDs)
	}

	res := mailpart.Flatten(mailpart.TopLevel(msg.Payload))
	if res.Text != "plain" || res.HTML != "<p>html</p>" {
		t.Errorf("bodies = (%q, %q)", res.Text, res.HTML)
	}
	if len(res.Assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(res.Assets))
	}
	pdf, ok := res.Assets[0].(*mailpart.Leaf)
	if !ok || pdf.Filename != "invoice.pdf" || pdf.AttachmentID != "att-1" {
		t.Errorf("asset = %+v", res.Assets[0])
	}
}

func TestListThreadsPages(t *testing.T) {
	calls := 0
	c := newTestClient(t, map[string]http.HandlerFunc{
		"GET /gmail/v1/users/me/threads": func(w http.ResponseWriter, r *http.Request) {
			calls++
			q := r.URL.Query()
			if q.Get("labelIds") != "Label_1" {
				t.Errorf("labelIds = %q", q.Get("labelIds"))
			}
			switch q.Get("pageToken") {
			case "":
				writeJSON(t, w, map[string]any{
					"threads":       []any{map[string]string{"id": "a"}, map[string]string{"id": "b"}},
					"nextPageToken": "p2",
				})
			case "p2":
				writeJSON(t, w, map[string]any{
					"threads": []any{map[string]string{"id": "c"}},
				})
			default:
				t.Errorf("unexpected pageToken %q", q.Get("pageToken"))
			}
		},
	})

	ids, err := c.ListThreads(context.Background(), "Label_1", 10)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("ids = %v", ids)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestModifyAndTrash(t *testing.T) {
	var modified gmailapi.ModifyThreadRequest
	trashed := false

	c := newTestClient(t, map[string]http.HandlerFunc{
		"POST /gmail/v1/users/me/threads/t1/modify": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&modified); err != nil {
				t.Errorf("decoding modify request: %v", err)
			}
			writeJSON(t, w, map[string]any{"id": "t1"})
		},
		"POST /gmail/v1/users/me/threads/t1/trash": func(w http.ResponseWriter, r *http.Request) {
			trashed = true
			writeJSON(t, w, map[string]any{"id": "t1"})
		},
	})

	ctx := context.Background()
	if err := c.ModifyThreadLabels(ctx, "t1", []string{"Label_done"}, []string{"Label_todo", ""}); err != nil {
		t.Fatalf("ModifyThreadLabels: %v", err)
	}
	if fmt.Sprint(modified.AddLabelIds) != "[Label_done]" || fmt.Sprint(modified.RemoveLabelIds) != "[Label_todo]" {
		t.Errorf("request = %+v", modified)
	}

	if err := c.TrashThread(ctx, "t1"); err != nil {
		t.Fatalf("TrashThread: %v", err)
	}
	if !trashed {
		t.Error("trash endpoint not called")
	}
}

func TestGetAttachment(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"GET /gmail/v1/users/me/messages/m1/attachments/att-1": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"data": b64("%PDF-1.4 binary?>")})
		},
	})

	data, err := c.GetAttachment(context.Background(), "m1", "att-1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if string(data) != "%PDF-1.4 binary?>" {
		t.Errorf("data = %q", data)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, map[string]http.HandlerFunc{
		"GET /gmail/v1/users/me/labels": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
		},
	})

	_, err := c.Labels(context.Background())
	if !source.IsAuthError(err) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

type memTokens struct {
	tok *oauth2.Token
}

func (m *memTokens) Load() (*oauth2.Token, error) {
	if m.tok == nil {
		return nil, fmt.Errorf("no token")
	}
	return m.tok, nil
}

func (m *memTokens) Save(tok *oauth2.Token) error {
	m.tok = tok
	return nil
}

func TestAuthorizeWithoutCredentials(t *testing.T) {
	ctx := context.Background()

	unconfigured := New(NewOAuthConfig("", "", ""), &memTokens{}, "me", zap.NewNop())
	if err := unconfigured.Authorize(ctx); !source.IsAuthError(err) {
		t.Errorf("no client id: err = %v, want AuthError", err)
	}

	noToken := New(NewOAuthConfig("id", "secret", "http://localhost"), &memTokens{}, "me", zap.NewNop())
	if err := noToken.Authorize(ctx); !source.IsAuthError(err) {
		t.Errorf("no token: err = %v, want AuthError", err)
	}

	if _, err := noToken.Profile(ctx); !source.IsAuthError(err) {
		t.Errorf("Profile before Authorize: err = %v, want AuthError", err)
	}
}

func TestParseAuthCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"4/abc", "4/abc", false},
		{"  4/abc \n", "4/abc", false},
		{"http://localhost/?state=mailnote-setup&code=4%2Fxyz&scope=gmail", "4/xyz", false},
		{"http://localhost/?error=access_denied&code=", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAuthCode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAuthCode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAuthCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestThreadLink(t *testing.T) {
	c := NewWithService(nil, "", zap.NewNop())
	if got := c.ThreadLink("18c2f"); got != "https://mail.google.com/mail/#all/18c2f" {
		t.Errorf("ThreadLink = %q", got)
	}
}
