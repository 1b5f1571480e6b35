package docstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoCollection struct {
	coll *mongo.Collection
}

var _ Collection = (*mongoCollection)(nil)

// NewMongoCollection adapts a driver collection to Collection.
func NewMongoCollection(coll *mongo.Collection) Collection {
	return &mongoCollection{coll}
}

func (c *mongoCollection) Find(ctx context.Context, filter interface{}) ([]bson.M, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	docs := []bson.M{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) InsertOne(ctx context.Context, document interface{}) (interface{}, error) {
	res, err := c.coll.InsertOne(ctx, document)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}) error {
	_, err := c.coll.UpdateOne(ctx, filter, update)
	return err
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline interface{}) ([]bson.M, error) {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	docs := []bson.M{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Connect dials uri and verifies the primary is reachable.
func Connect(ctx context.Context, log logger.Logger, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "error pinging mongo")
	}
	log.Debug("connected to mongo")
	return client, nil
}
