package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/config"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the response cache",
	}
	cmd.AddCommand(cacheClearCmd(), cacheTTLCmd())
	return cmd
}

func openHashStore() (*cache.HashStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.CacheRedis.Addr == config.MemoryCacheAddr {
		return nil, fmt.Errorf("cache commands need a cache redis; the in-process cache lives inside the server")
	}
	policy := cache.NewPolicy(time.Duration(cfg.Cache.DefaultTTL)*time.Second, cfg.TTLOverrides())
	return cache.NewHashStore(cache.RedisConfig{
		Addr:     cfg.CacheRedis.Addr,
		Password: cfg.CacheRedis.Password,
		DB:       cfg.CacheRedis.DB,
	}, policy), nil
}

func cacheClearCmd() *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "clear <service> [endpoint]",
		Short: "Drop a whole service hash or a single endpoint",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := cache.ParseService(args[0])
			if !ok {
				return fmt.Errorf("unknown service %q", args[0])
			}
			endpoint := ""
			if len(args) == 2 {
				endpoint = args[1]
			}

			hs, err := openHashStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if publish {
				if err := cache.NewInvalidator(hs, hs.Client()).Publish(ctx, s, endpoint); err != nil {
					return fmt.Errorf("publish invalidation: %w", err)
				}
				fmt.Printf("Published invalidation for %s\n", target(s, endpoint))
				return nil
			}

			if endpoint == "" {
				err = hs.Purge(ctx, s)
			} else {
				err = hs.Remove(ctx, s, endpoint)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %s\n", target(s, endpoint))
			return nil
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "Publish on the invalidation channel instead of deleting directly")
	return cmd
}

func target(s cache.Service, endpoint string) string {
	if endpoint == "" {
		return cache.HashKey(s)
	}
	return cache.HashKey(s) + "[" + endpoint + "]"
}

func cacheTTLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl",
		Short: "Show configured and remaining TTL per service",
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := openHashStore()
			if err != nil {
				return err
			}
			defer hs.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tKEY\tTTL\tREMAINING\tFIELDS")
			for _, s := range cache.Services() {
				remaining := "-"
				fields := 0
				left, ok, err := hs.TTL(ctx, s)
				switch {
				case err != nil:
					remaining = "error"
				case ok && left < 0:
					remaining = "none"
				case ok:
					remaining = left.Round(time.Second).String()
				}
				if ok {
					if names, err := hs.Fields(ctx, s); err == nil {
						fields = len(names)
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					s, cache.HashKey(s), hs.Policy().TTL(s), remaining, fields)
			}
			return w.Flush()
		},
	}
}
