package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

const backend = "redis"

const (
	fieldID      = "id"
	fieldPayload = "payload"
)

// Driver is a document-collection store.Driver.
type Driver[P any] struct {
	client     redis.UniversalClient
	prefix     string
	collection string
	codec      store.Codec[P]
}

var _ store.Driver[domain.Properties] = (*Driver[domain.Properties])(nil)

// New returns a driver for collection. An empty prefix defaults to
// "nametags".
func New[P any](client redis.UniversalClient, prefix, collection string, codec store.Codec[P]) *Driver[P] {
	if prefix == "" {
		prefix = "nametags"
	}
	return &Driver[P]{client: client, prefix: prefix, collection: collection, codec: codec}
}

// Key returns the hash key holding id.
func (d *Driver[P]) Key(id string) string {
	return d.prefix + ":" + d.collection + ":" + id
}

func (d *Driver[P]) Start(ctx context.Context) error {
	return store.Wrap(backend, d.collection, "start", "", d.client.Ping(ctx).Err())
}

func (d *Driver[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	payload, err := d.client.HGet(ctx, d.Key(id), fieldPayload).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap(backend, d.collection, "find", id, err)
	}

	decoded, err := d.codec.Decode([]byte(payload))
	if err != nil {
		return nil, store.Wrap(backend, d.collection, "find", id, err)
	}
	return domain.NewAggregate(id, decoded), nil
}

func (d *Driver[P]) Exists(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.Key(id)).Result()
	if err != nil {
		return false, store.Wrap(backend, d.collection, "exists", id, err)
	}
	return n > 0, nil
}

func (d *Driver[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		return store.Wrap(backend, d.collection, "save", aggregate.ID(), err)
	}
	err = d.client.HSet(ctx, d.Key(aggregate.ID()),
		fieldID, aggregate.ID(),
		fieldPayload, string(data),
	).Err()
	return store.Wrap(backend, d.collection, "save", aggregate.ID(), err)
}

func (d *Driver[P]) Delete(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Del(ctx, d.Key(id)).Result()
	if err != nil {
		return false, store.Wrap(backend, d.collection, "delete", id, err)
	}
	return n > 0, nil
}
