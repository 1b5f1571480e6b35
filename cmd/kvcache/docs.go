package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/docstore"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func idString(id interface{}) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

func (r *rootCommand) withCollection(ctx context.Context, fn func(c docstore.Collection) error) error {
	client, err := docstore.Connect(ctx, r.logger, r.cfg.MongoURL)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	return fn(docstore.NewMongoCollection(client.Database(r.cfg.Database).Collection(r.cfg.Collection)))
}

func printDocs(cmd *cobra.Command, docs []bson.M) error {
	for _, doc := range docs {
		buf, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return errors.Wrap(err, "error encoding document")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(buf))
	}
	return nil
}

// parseFields turns key=value arguments into a document. Integer and float values keep their type.
func parseFields(args []string) (bson.M, error) {
	doc := bson.M{}
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Newf("invalid field %q, expected key=value", arg)
		}
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			doc[key] = i
		} else if f, err := strconv.ParseFloat(val, 64); err == nil {
			doc[key] = f
		} else {
			doc[key] = val
		}
	}
	return doc, nil
}

func docsCommand(root *rootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Query the configured mongo collection",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "logstats",
			Short: "Print nginx log statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					stats, err := docstore.LogStatistics(cmd.Context(), c)
					if err != nil {
						return err
					}
					_, err = stats.WriteTo(cmd.OutOrStdout())
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "top",
			Short: "Print documents ranked by their average topic score",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					docs, err := docstore.TopByAverage(cmd.Context(), c)
					if err != nil {
						return err
					}
					for _, doc := range docs {
						fmt.Fprintf(cmd.OutOrStdout(), "[%s] %v => %v\n", idString(doc["_id"]), doc["name"], doc[docstore.AverageScoreField])
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					docs, err := docstore.ListAll(cmd.Context(), c)
					if err != nil {
						return err
					}
					return printDocs(cmd, docs)
				})
			},
		},
		&cobra.Command{
			Use:   "by-topic <topic>",
			Short: "Print documents having topic",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					docs, err := docstore.FindByTopic(cmd.Context(), c, args[0])
					if err != nil {
						return err
					}
					return printDocs(cmd, docs)
				})
			},
		},
		&cobra.Command{
			Use:   "insert key=value...",
			Short: "Insert a document and print its id",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				doc, err := parseFields(args)
				if err != nil {
					return err
				}
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					id, err := docstore.Insert(cmd.Context(), c, doc)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), idString(id))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "update-topics <name> [topic...]",
			Short: "Replace the topics of the document called name",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withCollection(cmd.Context(), func(c docstore.Collection) error {
					return docstore.UpdateTopics(cmd.Context(), c, args[0], args[1:])
				})
			},
		},
	)
	return cmd
}
