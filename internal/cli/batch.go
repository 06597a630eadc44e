package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/logging"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/pipeline"
)

var (
	wikiHost     string
	setRank      string
	reason       string
	increment    bool
	individual   bool
	summaryText  string
	workers      int
	batchTimeout time.Duration
	outJSON      bool
)

// batchCmd groups the batch commands
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Change the rank of many statements at once",
	Long: `Batch commands edit statements on many entities. Every entity is loaded
once, patched and saved on its own; an entity that fails is reported and the
batch continues.

Exactly one of --set, --increment or --individual selects the mode:
  --set RANK       set every statement to RANK (optionally with --reason)
  --increment      raise every statement by one rank
  --individual     read rank and reason per statement from the input`,
}

var batchListCmd = &cobra.Command{
	Use:   "list <file|->",
	Short: "Edit statements listed one per line",
	Long: `List reads one statement ID per line, e.g. Q42$F078E5B3-F9A8-480E-B7AC-D97778CBBEF9.
With --individual each line is "statement|rank|reason" (tab also separates,
the reason is optional).

Example:
  ranker batch list --wiki www.wikidata.org --set preferred --reason Q71533355 ids.txt
  ranker batch list --wiki commons.wikimedia.org --increment - < ids.txt
  ranker batch list --wiki www.wikidata.org --individual commands.tsv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, input string) (*batch.Outcome, error) {
			return p.RunList(ctx, req, input)
		})
	},
}

var batchQueryCmd = &cobra.Command{
	Use:   "query <file|->",
	Short: "Edit statements selected by a SPARQL query",
	Long: `Query runs a SPARQL query on the wiki's query service and edits the
statements bound to ?statement. With --individual, ?rank selects the target
rank and ?reason, ?reasonForPreferredRank or ?reasonForDeprecatedRank the
reason.

Example:
  ranker batch query --wiki www.wikidata.org --set deprecated query.rq`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, input string) (*batch.Outcome, error) {
			return p.RunQuery(ctx, req, input)
		})
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchListCmd)
	batchCmd.AddCommand(batchQueryCmd)

	for _, cmd := range []*cobra.Command{batchListCmd, batchQueryCmd} {
		addModeFlags(cmd)
		cmd.Flags().BoolVar(&individual, "individual", false, "read rank and reason per statement from the input")
		cmd.Flags().IntVar(&workers, "workers", 0, "entities saved concurrently (default from config)")
		cmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
		cmd.Flags().BoolVar(&outJSON, "json", false, "print results as JSON")
		cmd.MarkFlagsMutuallyExclusive("set", "increment", "individual")
		cmd.MarkFlagsOneRequired("set", "increment", "individual")
	}
}

// addModeFlags registers the flags shared by batch and edit commands
func addModeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&wikiHost, "wiki", "www.wikidata.org", "wiki to edit")
	cmd.Flags().StringVar(&setRank, "set", "", "target rank (preferred, normal, deprecated)")
	cmd.Flags().BoolVar(&increment, "increment", false, "raise the rank by one")
	cmd.Flags().StringVar(&reason, "reason", "", "item ID recorded as reason for the new rank")
	cmd.Flags().StringVar(&summaryText, "summary", "", "custom text appended to the edit summary")
}

type batchFunc func(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, input string) (*batch.Outcome, error)

func runBatch(cmd *cobra.Command, source string, run batchFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Concurrency.Workers = workers
	}

	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}

	input, err := readInput(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	log := logging.Get("batch")
	p := pipeline.NewPipeline(cfg, pipeline.WithLogger(log))

	log.Debug().Str("wiki", req.Wiki).Int("workers", cfg.Concurrency.Workers).Msg("starting batch")
	outcome, err := run(ctx, p, req, input)
	if err != nil {
		return err
	}

	profile, err := p.Profile(outcome.Wiki)
	if err != nil {
		return err
	}
	labels := p.Labels(ctx, profile, outcome.EntityIDs())

	if outJSON {
		return printOutcomeJSON(cmd.OutOrStdout(), outcome, labels)
	}
	printOutcome(cmd.OutOrStdout(), outcome, labels)
	return nil
}

func buildRequest(cfg model.Config) (pipeline.Request, error) {
	req := pipeline.Request{
		Wiki:        wikiHost,
		Reason:      reason,
		Summary:     summaryText,
		AccessToken: cfg.Auth.AccessToken,
	}

	switch {
	case individual:
		req.Mode = pipeline.ModeIndividual
		if reason != "" {
			return req, errors.New("--reason cannot be combined with --individual")
		}
	case increment:
		req.Mode = pipeline.ModeIncrement
	default:
		rank, err := model.ParseRank(setRank)
		if err != nil {
			return req, err
		}
		req.Mode = pipeline.ModeSet
		req.Rank = rank
	}
	return req, nil
}

// readInput reads a file, or stdin for "-"
func readInput(stdin io.Reader, source string) (string, error) {
	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", source)
	}
	return string(data), nil
}
