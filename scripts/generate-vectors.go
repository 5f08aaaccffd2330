//go:build ignore

// Package main generates synthetic vectors for building and benchmarking.
// Usage: go run scripts/generate-vectors.go -items 10000 -dims 64 -output testdata/bench.jsonl
//
// With -fixtures DIR it instead writes the test_ann1 and test_ann2 archives
// used by the unit tests, for poking at a local server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/annserve/internal/ann/anntest"
)

var (
	numItems = flag.Int("items", 10000, "Number of vectors to generate")
	dims     = flag.Int("dims", 64, "Vector dimensions")
	prefix   = flag.String("prefix", "", "Prefix for generated ids")
	output   = flag.String("output", "-", "Output JSONL file, - for stdout")
	seed     = flag.Uint64("seed", 42, "Random seed for reproducibility")
	fixtures = flag.String("fixtures", "", "Write the unit test archives into this directory instead")
)

type record struct {
	ID      string    `json:"id"`
	Factors []float32 `json:"factors"`
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *fixtures != "" {
		return writeFixtures(*fixtures)
	}
	if *numItems <= 0 || *dims <= 0 {
		return fmt.Errorf("-items and -dims must be positive")
	}

	var w io.Writer = os.Stdout
	if *output != "-" {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			return err
		}
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	rng := rand.New(rand.NewPCG(*seed, *seed))
	for i := 0; i < *numItems; i++ {
		vec := make([]float32, *dims)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		if err := enc.Encode(record{ID: fmt.Sprintf("%s%d", *prefix, i), Factors: vec}); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	if *output != "-" {
		fmt.Fprintf(os.Stderr, "Generated %d vectors (%d dims) in %s\n", *numItems, *dims, *output)
	}
	return nil
}

func writeFixtures(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	a1, a2 := anntest.Standard()
	for _, f := range []anntest.Fixture{a1, a2} {
		if err := f.WriteTo(dir); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", f.Path(dir))
	}
	return nil
}
