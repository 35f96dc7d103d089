package history

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// FirestoreStore keeps the whole list in a single document, field Key.
type FirestoreStore struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
}

type historyDoc struct {
	Entries []models.HistoryRecord `firestore:"compressionHistory"`
}

func NewFirestoreStore(client *firestore.Client, collection, docID string) *FirestoreStore {
	return &FirestoreStore{client: client, doc: client.Collection(collection).Doc(docID)}
}

func (s *FirestoreStore) List(ctx context.Context) ([]models.HistoryRecord, error) {
	snap, err := s.doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history document: %w", err)
	}
	var d historyDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode history document: %w", err)
	}
	return d.Entries, nil
}

// Append rewrites the list inside a transaction.
func (s *FirestoreStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var d historyDoc
		snap, err := tx.Get(s.doc)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&d); err != nil {
				return err
			}
		}
		d.Entries = Prepend(d.Entries, rec)
		return tx.Set(s.doc, d)
	})
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}
