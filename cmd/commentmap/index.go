package main

import (
	"github.com/spf13/cobra"

	"commentmap/internal/publish"
)

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Publish dataset metadata and maps to the web tree and write index.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := publish.NewBuilder(a.cfg.DatasetsDir(), a.cfg.PublishDir(), a.log.Named("publish"))
			res, err := b.Build(cmd.Context())
			if err != nil {
				return err
			}
			a.console.IndexWritten(len(res.Datasets))
			return nil
		},
	}
}
