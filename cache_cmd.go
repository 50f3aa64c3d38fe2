package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Show the chunk audio cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			stats := c.Stats()
			fmt.Printf("Disk cache: %s in %d chunks (limit %s)\n",
				humanize.IBytes(uint64(stats.Disk.Size)), //nolint:gosec
				stats.Disk.ItemCount,
				humanize.IBytes(uint64(stats.Disk.Capacity)), //nolint:gosec
			)
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached chunk audio",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Println("Cache cleared")
			return nil
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
