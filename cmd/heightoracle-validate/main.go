// main.go -- heightoracle-validate: replay a pre-BIP34 text file
// against the built oracle artifacts and report mismatches.
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

	heightoracle "github.com/prebip34/heightoracle"
	"github.com/prebip34/heightoracle/internal/ingest"
)

var log = logrus.New()

const progressInterval = 10000

func main() {
	var input, assetsDir string

	root := &cobra.Command{
		Use:   "heightoracle-validate",
		Short: "Replay a pre-BIP34 text file against built oracle artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(input, assetsDir)
		},
	}
	root.Flags().StringVarP(&input, "input", "i", "assets/prebip34.txt", "text file to replay")
	root.Flags().StringVarP(&assetsDir, "assets-dir", "a", "assets", "directory holding the oracle artifacts")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("heightoracle-validate failed")
	}
}

func validate(input, assetsDir string) error {
	phashPath := filepath.Join(assetsDir, "phash.ptrh.dat")
	heightsPath := filepath.Join(assetsDir, "heights.u18packed.dat")

	oracle, err := heightoracle.Load(phashPath, heightsPath)
	if err != nil {
		return fmt.Errorf("load oracle: %w", err)
	}

	log.WithField("n", oracle.Len()).Info("loaded oracle")
	log.Info(oracle.MemoryStats().String())
	oracle.DumpMeta(os.Stderr)

	spotCheck(oracle)

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer f.Close()

	ids, heights, err := ingest.ParsePreBIP34Text(f)
	if err != nil {
		return err
	}

	var mismatches int
	for i, id := range ids {
		got := oracle.Lookup(id)
		if got != heights[i] {
			mismatches++
			log.WithFields(logrus.Fields{
				"identifier": heightoracle.FormatBlockHash(id),
				"expected":   heights[i],
				"got":        got,
			}).Error("height mismatch")
		}

		if (i+1)%progressInterval == 0 {
			log.WithField("processed", i+1).Info("validating")
		}
	}

	log.WithFields(logrus.Fields{
		"total":      len(ids),
		"mismatches": mismatches,
	}).Info("validation complete")

	if mismatches != 0 {
		return fmt.Errorf("%d mismatches out of %d entries", mismatches, len(ids))
	}
	return nil
}

func spotCheck(oracle *heightoracle.Oracle) {
	cases := []struct {
		name   string
		hex    string
		height uint32
	}{
		{"genesis", "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", 0},
		{"block-1", "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048", 1},
		{"block-100", "000000007bc154e0fa7ea32218a72fe2c1bb9f86cf8c9ebf9a715ed27fdb229a", 100},
	}

	for _, c := range cases {
		got := oracle.LookupHex(c.hex)
		log.WithFields(logrus.Fields{
			"name":     c.name,
			"expected": c.height,
			"got":      got,
			"ok":       got == c.height,
		}).Info("spot check")
	}
}
