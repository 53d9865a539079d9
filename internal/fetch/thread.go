package fetch

import (
	"context"
	"fmt"
	"mime"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/mailpart"
	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/note"
	"github.com/nhle/mailnote/internal/vault"
)

const noteExt = ".md"

// importThread turns one thread into a note and returns the note's path.
// The thread is relabeled and trashed only after the note exists.
func (f *Fetcher) importThread(ctx context.Context, r *run, id string) (string, error) {
	thread, err := f.provider.GetThread(ctx, id)
	if err != nil {
		return "", err
	}
	if len(thread.Messages) == 0 {
		return "", fmt.Errorf("thread has no messages")
	}
	first := thread.Messages[0]
	last := thread.Messages[len(thread.Messages)-1]

	flat := mailpart.Flatten(mailpart.TopLevel(last.Payload))

	var attachments []string
	if f.opts.FetchAttachment {
		attachments, err = f.saveAttachments(ctx, thread.ID, last.ID, flat.Assets)
		if err != nil {
			return "", err
		}
	}

	fields := note.BindFields(note.Input{
		Headers:     first.Headers,
		LabelIDs:    first.LabelIDs,
		LabelNames:  r.labelNames,
		Body:        note.RenderBody(flat.Text, flat.HTML, r.template.BodyFormat),
		Link:        f.provider.ThreadLink(thread.ID),
		Attachments: attachments,
	}, r.template.LabelFormat)

	content := note.Render(r.template.Text, fields)
	name := note.NoteName(f.opts.NoteName, fields) + noteExt

	notePath, err := vault.Allocate(ctx, f.vault, name, f.opts.MailFolder)
	if err != nil {
		return "", err
	}
	if err := f.vault.CreateText(ctx, notePath, content); err != nil {
		return "", fmt.Errorf("writing note %s: %w", notePath, err)
	}

	var add []string
	if r.toID != "" {
		add = []string{r.toID}
	}
	if err := f.provider.ModifyThreadLabels(ctx, thread.ID, add, []string{r.fromID}); err != nil {
		return "", fmt.Errorf("relabeling: %w", err)
	}

	if f.opts.DestroyOnFetch {
		if err := f.provider.TrashThread(ctx, thread.ID); err != nil {
			return "", fmt.Errorf("trashing: %w", err)
		}
	}

	f.logger.Info("thread imported",
		zap.String("thread_id", thread.ID),
		zap.String("note", notePath),
		zap.Int("attachments", len(attachments)),
	)

	f.recordImport(ctx, model.ImportRecord{
		RunID:       r.record.ID,
		ThreadID:    thread.ID,
		NotePath:    notePath,
		Subject:     fields.Get(note.FieldSubject),
		Attachments: attachments,
		Trashed:     f.opts.DestroyOnFetch,
		ImportedAt:  time.Now(),
	})
	return notePath, nil
}

// saveAttachments writes every leaf asset into the attachment folder and
// returns the created paths. Nested containers carry no file of their own
// and are skipped.
func (f *Fetcher) saveAttachments(
	ctx context.Context, threadID, messageID string, assets []mailpart.Part,
) ([]string, error) {
	var paths []string
	for i, asset := range assets {
		leaf, ok := asset.(*mailpart.Leaf)
		if !ok {
			continue
		}

		data := leaf.Body
		if leaf.AttachmentID != "" {
			var err error
			data, err = f.provider.GetAttachment(ctx, messageID, leaf.AttachmentID)
			if err != nil {
				return nil, fmt.Errorf("downloading attachment %d: %w", i+1, err)
			}
		}

		p, err := vault.Allocate(ctx, f.vault, attachmentName(leaf, threadID, i+1), f.opts.AttachmentFolder)
		if err != nil {
			return nil, err
		}
		if err := f.vault.CreateBinary(ctx, p, data); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// attachmentName returns the part's file name, or one derived from the
// thread id and media type for unnamed parts.
func attachmentName(leaf *mailpart.Leaf, threadID string, n int) string {
	if leaf.Filename != "" {
		return leaf.Filename
	}
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(leaf.Type()); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("%s-%d%s", threadID, n, ext)
}

func (f *Fetcher) recordImport(ctx context.Context, rec model.ImportRecord) {
	if f.ledger == nil {
		return
	}
	if err := f.ledger.RecordImport(ctx, rec); err != nil {
		f.logger.Warn("recording import failed",
			zap.String("thread_id", rec.ThreadID), zap.Error(err))
	}
}
