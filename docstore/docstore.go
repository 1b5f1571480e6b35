// Package docstore holds small query helpers over a document collection: a
// school catalog (name, topics) and an nginx access log (method, path, ip).
package docstore

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// AverageScoreField is the field TopByAverage adds to every document.
const AverageScoreField = "averageScore"

// Collection is the subset of a document collection the helpers use.
// Filters, updates and pipelines are driver values such as bson.M, bson.D or mongo.Pipeline.
type Collection interface {
	Find(ctx context.Context, filter interface{}) ([]bson.M, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
	InsertOne(ctx context.Context, document interface{}) (interface{}, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) error
	Aggregate(ctx context.Context, pipeline interface{}) ([]bson.M, error)
}

// ListAll returns every document in the collection's natural order.
func ListAll(ctx context.Context, c Collection) ([]bson.M, error) {
	docs, err := c.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "error listing documents")
	}
	return docs, nil
}

// Insert creates a document from fields and returns its id.
func Insert(ctx context.Context, c Collection, fields bson.M) (interface{}, error) {
	id, err := c.InsertOne(ctx, fields)
	if err != nil {
		return nil, errors.Wrap(err, "error inserting document")
	}
	return id, nil
}

// UpdateTopics replaces the topics of the document named name. A name that
// matches nothing is not an error.
func UpdateTopics(ctx context.Context, c Collection, name string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	if err := c.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{"topics": topics}}); err != nil {
		return errors.Wrapf(err, "error updating topics of %s", name)
	}
	return nil
}

// FindByTopic returns the documents whose topics contain topic.
func FindByTopic(ctx context.Context, c Collection, topic string) ([]bson.M, error) {
	docs, err := c.Find(ctx, bson.M{"topics": topic})
	if err != nil {
		return nil, errors.Wrapf(err, "error finding documents with topic %s", topic)
	}
	return docs, nil
}

// TopByAverage returns every document with an averageScore field set to the
// mean of its topics' scores, highest first. Documents without scored topics
// average 0. Equal averages keep the collection's order.
func TopByAverage(ctx context.Context, c Collection) ([]bson.M, error) {
	docs, err := c.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "error listing documents")
	}
	for _, doc := range docs {
		doc[AverageScoreField] = averageScore(doc["topics"])
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i][AverageScoreField].(float64) > docs[j][AverageScoreField].(float64)
	})
	return docs, nil
}

func averageScore(topics interface{}) float64 {
	var sum float64
	var n int
	for _, topic := range asSlice(topics) {
		var score interface{}
		switch t := topic.(type) {
		case bson.M:
			score = t["score"]
		case map[string]interface{}:
			score = t["score"]
		case bson.D:
			for _, e := range t {
				if e.Key == "score" {
					score = e.Value
				}
			}
		default:
			continue
		}
		if f, ok := toFloat(score); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func asSlice(val interface{}) []interface{} {
	switch v := val.(type) {
	case bson.A:
		return v
	case []interface{}:
		return v
	case []bson.M:
		out := make([]interface{}, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	}
	return nil
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
