package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"cdpproxy/config"
	"cdpproxy/core/types"
	"cdpproxy/indexer"
)

type eventFilter struct {
	kind    string
	vault   string
	account string
	from    uint64
	limit   int
}

func (f *eventFilter) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "type", "", "event type")
	cmd.Flags().StringVar(&f.vault, "vault", "", "vault id")
	cmd.Flags().StringVar(&f.account, "account", "", "account or owner address")
	cmd.Flags().Uint64Var(&f.from, "from", 0, "first transaction sequence")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of events")
}

func (f *eventFilter) query() string {
	q := url.Values{}
	if f.kind != "" {
		q.Set("type", f.kind)
	}
	if f.vault != "" {
		q.Set("vault", f.vault)
	}
	if f.account != "" {
		q.Set("account", f.account)
	}
	if f.from > 0 {
		q.Set("from", strconv.FormatUint(f.from, 10))
	}
	if f.limit > 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (f *eventFilter) indexerFilter() indexer.Filter {
	return indexer.Filter{Type: f.kind, VaultID: f.vault, Account: f.account, FromSequence: f.from, Limit: f.limit}
}

func newEventsCmd(client func() *gatewayClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event index",
	}

	var listFilter eventFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed events through the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var evs []*types.Event
			if err := client().get(cmd.Context(), "/v1/events"+listFilter.query(), &evs); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), evs)
		},
	}
	listFilter.bind(list)

	var exportFilter eventFilter
	var cfgPath, out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write indexed events from the node's index database to a parquet file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if !cfg.Indexer.Enabled {
				return fmt.Errorf("event index is disabled in %s", cfgPath)
			}
			db, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			ix, err := indexer.New(db, nil)
			if err != nil {
				return err
			}
			n, err := ix.ExportParquet(cmd.Context(), out, exportFilter.indexerFilter())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", n, out)
			return nil
		},
	}
	exportFilter.bind(export)
	export.Flags().StringVar(&cfgPath, "config", "./cdpd.toml", "node configuration")
	export.Flags().StringVar(&out, "out", "events.parquet", "output file")

	cmd.AddCommand(list, export)
	return cmd
}
