package repositories

import (
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/errors"
)

// Fetch reads the current content of a collection through a short-lived subscription.
func Fetch(ctx context.Context, client contract.ICollectionClient, name collection.Name, filter collection.Filter) ([]collection.Record, error) {
	sub, err := client.Subscribe(ctx, name, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case snapshot, ok := <-sub.Snapshots():
		if !ok {
			return nil, errors.NewPersistenceError("fetch", string(name), "", errors.ErrSubscriptionClosed)
		}
		return snapshot.Records, nil
	case <-ctx.Done():
		return nil, errors.NewPersistenceError("fetch", string(name), "", ctx.Err())
	}
}
