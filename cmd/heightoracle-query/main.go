// main.go -- heightoracle-query: look up a single block identifier's
// pre-BIP34 height.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	heightoracle "github.com/prebip34/heightoracle"
)

func main() {
	var assetsDir string

	root := &cobra.Command{
		Use:   "heightoracle-query IDENTIFIER",
		Short: "Look up the pre-BIP34 height of a block identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(assetsDir, args[0])
		},
	}
	root.Flags().StringVarP(&assetsDir, "assets-dir", "a", "assets", "directory holding the oracle artifacts")

	if err := root.Execute(); err != nil {
		die("%s", err)
	}
}

func query(assetsDir, hex string) error {
	id, err := heightoracle.ParseBlockHash(hex)
	if err != nil {
		return fmt.Errorf("bad identifier %q: %w", hex, err)
	}

	phashPath := filepath.Join(assetsDir, "phash.ptrh.dat")
	heightsPath := filepath.Join(assetsDir, "heights.u18packed.dat")

	oracle, err := heightoracle.Load(phashPath, heightsPath)
	if err != nil {
		return err
	}

	fmt.Println(oracle.Lookup(id))
	return nil
}

func die(f string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "heightoracle-query: "+f+"\n", v...)
	os.Exit(1)
}
