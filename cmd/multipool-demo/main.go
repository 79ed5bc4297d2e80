package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krishna8167/multipool"
)

// demoConn is a toy resource standing in for whatever expensive object a
// real caller would pool (a DB session, a gRPC connection, ...).
type demoConn struct {
	category string
	id       int
}

func (c *demoConn) String() string {
	return fmt.Sprintf("%s-conn-%d", c.category, c.id)
}

// buildDemoPool wires up a Pool[string, *demoConn] with logging and a
// connection counter standing in for the kind of expensive constructor the
// loader would normally run. This is a demo harness exercising the public
// API end to end, not a served product: no network listener, no persisted
// state across invocations.
func buildDemoPool(logger *zap.Logger) *multipool.Pool[string, *demoConn] {
	next := map[string]int{}
	pool, err := multipool.New[string, *demoConn](
		func(_ context.Context, category string) (*demoConn, error) {
			next[category]++
			return &demoConn{category: category, id: next[category]}, nil
		},
		multipool.WithMaximumSize[string, *demoConn](64),
		multipool.WithLogger[string, *demoConn](logger),
		multipool.WithLifecycle[string, *demoConn](multipool.Lifecycle[string, *demoConn]{
			OnCreate:  func(category string, r *demoConn) { logger.Info("created", zap.String("category", category), zap.Stringer("conn", r)) },
			OnBorrow:  func(category string, r *demoConn) { logger.Info("borrowed", zap.String("category", category), zap.Stringer("conn", r)) },
			OnRelease: func(category string, r *demoConn) { logger.Info("released", zap.String("category", category), zap.Stringer("conn", r)) },
			OnRemoval: func(category string, r *demoConn) { logger.Info("removed", zap.String("category", category), zap.Stringer("conn", r)) },
		}),
	)
	if err != nil {
		// The options above are all internally consistent, so this would
		// only fire on a programming mistake in this file.
		panic(err)
	}
	return pool
}

func newRootCmd() *cobra.Command {
	var category string
	var count int
	var hold time.Duration

	logger, _ := zap.NewDevelopment()

	root := &cobra.Command{
		Use:   "multipool-demo",
		Short: "Exercises a multipool.Pool against a toy in-process resource",
		Long: "multipool-demo borrows, holds, and releases toy connections through a " +
			"single in-process Pool to demonstrate its public API. It has no network " +
			"listener and persists nothing between invocations.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Borrow count resources for category, hold them, release, and print stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := buildDemoPool(logger)
			defer pool.Close()

			handles := make([]*multipool.Handle[string, *demoConn], 0, count)
			for i := 0; i < count; i++ {
				h, err := pool.Borrow(cmd.Context(), category)
				if err != nil {
					return err
				}
				handles = append(handles, h)
			}
			if hold > 0 {
				time.Sleep(hold)
			}
			for _, h := range handles {
				if err := h.Release(); err != nil {
					return err
				}
			}
			printStats(cmd, pool)
			return nil
		},
	}
	runCmd.Flags().StringVar(&category, "category", "default", "resource category to borrow")
	runCmd.Flags().IntVar(&count, "count", 1, "number of resources to borrow before releasing")
	runCmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the resources before releasing")

	handoffCmd := &cobra.Command{
		Use:   "handoff",
		Short: "Demonstrate a direct releaser-to-borrower handoff for one category",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := buildDemoPool(logger)
			defer pool.Close()

			h, err := pool.Borrow(cmd.Context(), category)
			if err != nil {
				return err
			}
			if err := h.ReleaseAfter(hold); err != nil {
				return err
			}
			waiter, err := pool.Borrow(cmd.Context(), category)
			if err != nil {
				return err
			}
			conn, _ := waiter.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "waiting borrow received %s without waiting out the delay\n", conn)
			return waiter.Release()
		},
	}
	handoffCmd.Flags().StringVar(&category, "category", "default", "resource category")
	handoffCmd.Flags().DurationVar(&hold, "hold", 5*time.Second, "delay window for the deferred release")

	root.AddCommand(runCmd, handoffCmd)
	return root
}

func printStats(cmd *cobra.Command, pool *multipool.Pool[string, *demoConn]) {
	stats := pool.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "cached=%d live_categories=%d idle_by_category=%v\n",
		stats.CachedResources, stats.LiveCategories, stats.IdleByCategory)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
