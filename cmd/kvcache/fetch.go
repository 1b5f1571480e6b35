package main

import (
	"context"
	"fmt"

	"github.com/shopmonkeyus/go-kvcache/fetchcache"
	"github.com/shopmonkeyus/go-kvcache/http"
	"github.com/spf13/cobra"
)

func (r *rootCommand) withFetchCache(ctx context.Context, fn func(c *fetchcache.Cache) error) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if r.flush {
		if err := store.FlushAll(ctx); err != nil {
			return err
		}
	}
	client := http.New(
		http.WithLogger(r.logger),
		http.WithTimeout(r.cfg.HTTPTimeout),
		http.WithMaxAttempts(r.cfg.HTTPMaxAttempts),
	)
	c, err := fetchcache.New(r.logger, store, client, fetchcache.WithTTL(r.cfg.FetchTTL))
	if err != nil {
		return err
	}
	return fn(c)
}

func fetchCommand(root *rootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Print the body of url, served from the cache while it is fresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withFetchCache(cmd.Context(), func(c *fetchcache.Cache) error {
				body, err := c.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), body)
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "count <url>",
		Short: "Print how many times url was requested",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withFetchCache(cmd.Context(), func(c *fetchcache.Cache) error {
				count, err := c.AccessCount(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	})
	return cmd
}
