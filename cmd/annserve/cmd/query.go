package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/ann"
)

type queryFlags struct {
	id     string
	emb    string
	k      int
	dist   bool
	score  bool
	thresh float64
}

func newQueryCmd() *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query <index>",
		Short: "Run one neighbor query and print the result as JSON",
		Example: `  annserve query test_ann1 --id 0 -k 10
  annserve query test_ann1 --emb "0.1,0.2,..." -k 5 --dist
  annserve query test_ann1 --id t2-4 -k 5 --score --thresh 0.4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogger(cfg, true)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()

			svc, err := openServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			res, ok := svc.registry.Get(args[0])
			if !ok {
				return ann.UnknownResource(args[0])
			}
			result, err := res.ResolveQuery(cmd.Context(), q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&f.id, "id", "", "Item id to find neighbors of")
	cmd.Flags().StringVar(&f.emb, "emb", "", "Comma-separated query vector")
	cmd.Flags().IntVarP(&f.k, "k", "k", 10, "Number of neighbors")
	cmd.Flags().BoolVar(&f.dist, "dist", false, "Include distances")
	cmd.Flags().BoolVar(&f.score, "score", false, "Include distance/2 scores (angular indexes only)")
	cmd.Flags().Float64Var(&f.thresh, "thresh", 0, "Keep only scores strictly above this value (implies --score)")
	cmd.MarkFlagsMutuallyExclusive("id", "emb")

	return cmd
}

// query converts the flags into an ann.Query.
func (f queryFlags) query(cmd *cobra.Command) (ann.Query, error) {
	q := ann.Query{K: f.k, InclDist: f.dist, InclScore: f.score}
	switch {
	case f.id != "":
		id := f.id
		q.ID = &id
	case f.emb != "":
		vec, err := parseVector(f.emb)
		if err != nil {
			return ann.Query{}, err
		}
		q.Emb = vec
	default:
		return ann.Query{}, errors.New("one of --id or --emb is required")
	}
	if cmd.Flags().Changed("thresh") {
		t := f.thresh
		q.ThreshScore = &t
	}
	return q, q.Validate()
}

// parseVector parses "f,f,...".
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("--emb element %d: %w", i, err)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
