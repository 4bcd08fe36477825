// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package sync

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreWatcher returns a Watcher streaming Firestore query snapshots.
func NewFirestoreWatcher(client *firestore.Client) *FirestoreWatcher {
	return &FirestoreWatcher{
		client: client,
	}
}

// FirestoreWatcher adapts Firestore snapshot listeners to the Watcher
// interface.
type FirestoreWatcher struct {
	client *firestore.Client
}

// Watch implements Watcher.
func (w *FirestoreWatcher) Watch(ctx context.Context, path string, q *Query, deliver func(Batch)) (CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	query := w.client.Collection(path).Query
	if q != nil {
		query = query.Where(q.Field, q.Op, q.Value)
	}
	snaps := query.Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					slog.ErrorContext(ctx, "sync: snapshot stream ended", "path", path, "error", err)
				}
				return
			}
			batch := make(Batch, 0, len(snap.Changes))
			for _, change := range snap.Changes {
				c := Change{ID: change.Doc.Ref.ID}
				switch change.Kind {
				case firestore.DocumentAdded:
					c.Kind = DocumentAdded
					c.Decode = change.Doc.DataTo
				case firestore.DocumentModified:
					c.Kind = DocumentModified
					c.Decode = change.Doc.DataTo
				case firestore.DocumentRemoved:
					c.Kind = DocumentRemoved
				}
				batch = append(batch, c)
			}
			if len(batch) > 0 {
				deliver(batch)
			}
		}
	}()

	return CancelFunc(cancel), nil
}
