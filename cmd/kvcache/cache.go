package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/cache"
	"github.com/spf13/cobra"
)

func (r *rootCommand) withCache(ctx context.Context, fn func(c *cache.Cache) error) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	var opts []cache.ConfigOpt
	if !r.flush {
		opts = append(opts, cache.WithoutFlush())
	}
	c, err := cache.New(ctx, r.logger, store, opts...)
	if err != nil {
		return err
	}
	return fn(c)
}

func storeCommand(root *rootCommand) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "store <value>",
		Short: "Store a value under a new key and print the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cache.ParseKind(kind)
			if err != nil {
				return err
			}
			v, err := cache.ParseValue(k, args[0])
			if err != nil {
				return err
			}
			return root.withCache(cmd.Context(), func(c *cache.Cache) error {
				key, err := c.Store(cmd.Context(), v)
				if key != "" {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "text", "value type: text, binary, int or float")
	return cmd
}

func getCommand(root *rootCommand) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := args[0]
			return root.withCache(ctx, func(c *cache.Cache) error {
				var found bool
				var val interface{}
				var err error
				switch as {
				case "bytes", "binary":
					var raw []byte
					found, raw, err = cache.RetrieveWith(ctx, c, key, cache.AsBytes)
					val = fmt.Sprintf("%q", raw)
				case "text", "string":
					found, val, err = cache.RetrieveWith(ctx, c, key, anyOf(cache.AsString))
				case "int":
					found, val, err = cache.RetrieveWith(ctx, c, key, anyOf(cache.AsInt))
				case "float":
					found, val, err = cache.RetrieveWith(ctx, c, key, anyOf(cache.AsFloat))
				default:
					return errors.Newf("unknown conversion %q", as)
				}
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintln(cmd.OutOrStdout(), "(nil)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), val)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "text", "decode as bytes, text, int or float")
	return cmd
}

func anyOf[T any](fn cache.Converter[T]) cache.Converter[interface{}] {
	return func(raw []byte) (interface{}, error) {
		return fn(raw)
	}
}

func replayCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [operation]",
		Short: "Print every recorded call of an operation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := cache.StoreOperation
			if len(args) > 0 {
				op = args[0]
			}
			return root.withCache(cmd.Context(), func(c *cache.Cache) error {
				r, err := c.Replay(cmd.Context(), op)
				if err != nil {
					return err
				}
				_, err = r.WriteTo(cmd.OutOrStdout())
				return err
			})
		},
	}
}

func callsCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "calls [operation]",
		Short: "Print how many times an operation was called",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := cache.StoreOperation
			if len(args) > 0 {
				op = args[0]
			}
			return root.withCache(cmd.Context(), func(c *cache.Cache) error {
				count, err := c.CallCount(cmd.Context(), op)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
}
