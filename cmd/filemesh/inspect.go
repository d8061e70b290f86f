package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/config"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorfilters"
	"github.com/filemesh/go-filemesh/sql/collectorq"
	"github.com/filemesh/go-filemesh/sql/senderfilters"
)

const inspectPage = 1000

func inspectCommand(conf *config.Config, configure func(*cobra.Command) error) *cobra.Command {
	c := &cobra.Command{
		Use:   "inspect",
		Short: "Print persisted state of a store",
	}
	sub := func(use, short string, show func(c *cobra.Command, db sql.Executor, sidx types.SIndex) error) {
		c.AddCommand(&cobra.Command{
			Use:   use + " <sidx>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				if err := configure(c); err != nil {
					return err
				}
				sidx, err := parseSIndex(args[0])
				if err != nil {
					return err
				}
				return withDatabase(conf, func(db *sql.Database) error {
					if err := requireStore(db, sidx); err != nil {
						return err
					}
					return show(c, db, sidx)
				})
			},
		})
	}
	sub("queue", "Print collector queue", printQueue)
	sub("filters", "Print durable filters of devices", printFilters)
	sub("sender", "Print sender filters", printSender)
	return c
}

func printQueue(c *cobra.Command, db sql.Executor, sidx types.SIndex) error {
	content, err := collectorq.GetMode(db, sidx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "collect content: %t\n", content)
	var after types.CollectorSeq
	for {
		entries, err := collectorq.List(db, sidx, after, inspectPage)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			fmt.Fprintf(c.OutOrStdout(), "%d\t%s\t%s\n", entry.Seq, entry.OCID.OID, entry.OCID.CID)
		}
		after = entries[len(entries)-1].Seq
	}
}

func printFilters(c *cobra.Command, db sql.Executor, sidx types.SIndex) error {
	dids, err := collectorfilters.Devices(db, sidx)
	if err != nil {
		return err
	}
	for _, did := range dids {
		filter, err := collectorfilters.Get(db, sidx, did)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "%s\t%s\n", did, filter)
	}
	return nil
}

func printSender(c *cobra.Command, db sql.Executor, sidx types.SIndex) error {
	entries, err := senderfilters.Range(db, sidx, types.BaseIndex)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		devices, err := senderfilters.CountDevicesAt(db, sidx, entry.Index)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "%d\t%s\tdevices=%d\n", entry.Index, entry.Filter, devices)
	}
	return nil
}
