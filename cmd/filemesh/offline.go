package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/config"
	"github.com/filemesh/go-filemesh/knowledge"
	"github.com/filemesh/go-filemesh/node"
	"github.com/filemesh/go-filemesh/senderfilters"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorfilters"
	"github.com/filemesh/go-filemesh/sql/collectorq"
	sfsql "github.com/filemesh/go-filemesh/sql/senderfilters"
	"github.com/filemesh/go-filemesh/sql/stores"
)

var errUnknownStore = errors.New("unknown store")

func parseSIndex(s string) (types.SIndex, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse store index %q: %w", s, err)
	}
	return types.SIndex(v), nil
}

// withDatabase opens the database of a node that is not running.
func withDatabase(conf *config.Config, fn func(db *sql.Database) error) error {
	app := node.New(node.WithConfig(conf))
	if err := app.Lock(); err != nil {
		return err
	}
	defer app.Unlock()
	db, err := sql.Open("file:"+conf.DatabasePath(), sql.WithConnections(1))
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func requireStore(db sql.Executor, sidx types.SIndex) error {
	has, err := stores.Has(db, sidx)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w %v", errUnknownStore, sidx)
	}
	return nil
}

func storeCommand(conf *config.Config, configure func(*cobra.Command) error) *cobra.Command {
	c := &cobra.Command{
		Use:   "store",
		Short: "Manage synchronized stores of a stopped node",
	}
	c.AddCommand(&cobra.Command{
		Use:   "add <sidx>",
		Short: "Add store",
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
				return db.WithTx(context.Background(), func(tx *sql.Tx) error {
					if err := stores.Add(tx, sidx, time.Now()); err != nil {
						return err
					}
					// creates the base sender filter
					_, err := senderfilters.New(tx, sidx)
					return err
				})
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "remove <sidx>",
		Short: "Remove store and its state",
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
				return db.WithTx(context.Background(), func(tx *sql.Tx) error {
					if err := requireStore(tx, sidx); err != nil {
						return err
					}
					for _, remove := range []func(sql.Executor, types.SIndex) error{
						collectorq.DeleteStore,
						collectorfilters.DeleteStore,
						sfsql.DeleteStore,
						knowledge.DeleteStore,
						stores.Delete,
					} {
						if err := remove(tx, sidx); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stores",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c); err != nil {
				return err
			}
			return withDatabase(conf, func(db *sql.Database) error {
				all, err := stores.All(db)
				if err != nil {
					return err
				}
				for _, sidx := range all {
					fmt.Fprintln(c.OutOrStdout(), sidx)
				}
				return nil
			})
		},
	})
	return c
}

func learnCommand(conf *config.Config, configure func(*cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   "learn <sidx> <oid> <cid>",
		Short: "Enqueue a component for collection",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c); err != nil {
				return err
			}
			sidx, err := parseSIndex(args[0])
			if err != nil {
				return err
			}
			oid, err := types.ParseOID(args[1])
			if err != nil {
				return err
			}
			cid, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("parse component %q: %w", args[2], err)
			}
			socid := types.SOCID{SIndex: sidx, OCID: types.OCID{OID: oid, CID: types.CID(cid)}}
			return withDatabase(conf, func(db *sql.Database) error {
				return db.WithTx(context.Background(), func(tx *sql.Tx) error {
					if err := requireStore(tx, sidx); err != nil {
						return err
					}
					seq, err := knowledge.Learn(tx, socid)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.OutOrStdout(), seq)
					return nil
				})
			})
		},
	}
}
