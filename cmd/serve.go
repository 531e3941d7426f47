package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"ddbridge/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve table, load and dictionary operations over HTTP",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(cmd *cobra.Command, a *app, args []string) error {
		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Server.Addr
		}
		a.reader.EnableMetadataCache(a.cfg.Server.MetadataCacheSize,
			time.Duration(a.cfg.Server.MetadataCacheTTL)*time.Second)
		srv := server.New(server.Config{
			Addr:            addr,
			MetadataDataset: a.cfg.Warehouse.MetadataDataset,
			Bucket:          a.cfg.Staging.Bucket,
		}, a.reader, a.provisioner, a.loader, a.metrics, a.log)
		return srv.ListenAndServe(cmd.Context())
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
}
