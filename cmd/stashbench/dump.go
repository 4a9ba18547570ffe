package main

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/argus-labs/stash/pkg/storage"
)

var flagDumpEntities int

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Populate a world and print its layout as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := storage.NewWorld(storage.WorldOptions{
			Tag:    flagTag,
			Logger: logger("storage"),
		})
		if err != nil {
			return err
		}

		wl, err := newWorkload(w, flagSeed)
		if err != nil {
			return err
		}
		if err := wl.populate(flagDumpEntities); err != nil {
			return err
		}
		if err := w.Commit(); err != nil {
			return err
		}

		data, err := w.DebugDump()
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return eris.Wrap(err, "failed to indent dump")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return err
	},
}

func init() {
	dumpCmd.Flags().IntVar(&flagDumpEntities, "entities", 100, "number of entities to create")
}
