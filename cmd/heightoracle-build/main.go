// main.go -- heightoracle-build: build the two oracle artifacts from a
// pre-BIP34 text file.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	pflag "github.com/opencoff/pflag"

	heightoracle "github.com/prebip34/heightoracle"
	"github.com/prebip34/heightoracle/internal/ingest"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:                "heightoracle-build",
		Short:              "Build the pre-BIP34 height oracle's two on-disk artifacts",
		DisableFlagParsing: true,
		RunE:               run,
	}

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("heightoracle-build failed")
	}
}

func run(cmd *cobra.Command, rawArgs []string) error {
	var input, outdir string
	var load float64

	fs := pflag.NewFlagSet("heightoracle-build", pflag.ExitOnError)
	fs.StringVarP(&input, "input", "i", "assets/prebip34.txt", "read identifiers from `FILE`")
	fs.StringVarP(&outdir, "output-dir", "o", "assets", "write artifacts under `DIR`")
	fs.Float64VarP(&load, "load", "l", 0.97, "use `L` as the CHD construction load factor")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "heightoracle-build [options]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(rawArgs); err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer f.Close()

	log.WithField("input", input).Info("ingesting pre-BIP34 text")

	ids, heights, err := ingest.ParsePreBIP34Text(f)
	if err != nil {
		return err
	}

	log.WithField("count", len(ids)).Info("building oracle")

	b := heightoracle.NewBuilder()
	for i, id := range ids {
		if err := b.Add(id, heights[i]); err != nil {
			return fmt.Errorf("add entry %d: %w", i, err)
		}
	}

	oracle, err := b.Freeze(load)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outdir, 0755); err != nil {
		return err
	}

	phashPath := filepath.Join(outdir, "phash.ptrh.dat")
	heightsPath := filepath.Join(outdir, "heights.u18packed.dat")

	if err := oracle.Save(phashPath, heightsPath); err != nil {
		return err
	}

	stats := oracle.MemoryStats()
	log.WithFields(logrus.Fields{
		"phash":   phashPath,
		"heights": heightsPath,
		"n":       oracle.Len(),
	}).Info("wrote oracle artifacts")
	fmt.Println(stats.String())
	oracle.DumpMeta(os.Stderr)

	return nil
}
