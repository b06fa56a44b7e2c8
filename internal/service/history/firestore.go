package history

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vibe-companion/backend/internal/model/chat"
)

const (
	usersCollection = "users"
	chatsCollection = "chats"
)

// Firestore stores each message as users/{uid}/chats/{id}.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore wraps client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) chats(uid string) *firestore.CollectionRef {
	return f.client.Collection(usersCollection).Doc(uid).Collection(chatsCollection)
}

// Append implements Store.
func (f *Firestore) Append(ctx context.Context, uid string, msg chat.Message) error {
	if err := Validate(uid, msg); err != nil {
		return err
	}
	_, err := f.chats(uid).Doc(msg.ID).Create(ctx, msg)
	if status.Code(err) == codes.AlreadyExists {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

// Clear implements Store.
func (f *Firestore) Clear(ctx context.Context, uid string) (int, error) {
	iter := f.chats(uid).Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("list messages: %w", err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("delete message %s: %w", doc.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("clear history: %w", errors.Join(errs...))
	}
	return deleted, nil
}

// Page implements Store.
func (f *Firestore) Page(ctx context.Context, uid, cursor string, limit int) (chat.Page, error) {
	limit = normalizeLimit(limit)
	col := f.chats(uid)
	q := col.OrderBy("timestamp", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(limit)

	if cursor != "" {
		snap, err := col.Doc(cursor).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return chat.Page{}, ErrNotFound
		}
		if err != nil {
			return chat.Page{}, fmt.Errorf("load cursor %s: %w", cursor, err)
		}
		q = q.StartAfter(snap)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var msgs []chat.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return chat.Page{}, fmt.Errorf("query messages: %w", err)
		}
		var msg chat.Message
		if err := doc.DataTo(&msg); err != nil {
			return chat.Page{}, fmt.Errorf("decode message %s: %w", doc.Ref.ID, err)
		}
		if msg.ID == "" {
			msg.ID = doc.Ref.ID
		}
		msgs = append(msgs, msg)
	}
	return newPage(msgs, limit), nil
}
