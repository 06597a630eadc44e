package cli

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/logging"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/pipeline"
)

var (
	entityID     string
	propertyID   string
	statementIDs []string
	baseRevision int64
	editTimeout  time.Duration
)

// editCmd represents the edit command
var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Change the rank of statements of one entity property",
	Long: `Edit changes statements of one property of one entity in a single save.
The entity may be given as a "File:" title on Commons.

Example:
  ranker edit --wiki www.wikidata.org --entity Q42 --property P31 \
    --statement 'Q42$F078E5B3-F9A8-480E-B7AC-D97778CBBEF9' --set preferred
  ranker edit --wiki commons.wikimedia.org --entity File:Example.jpg --property P180 \
    --statement 'M123$abc' --increment --base-revision 456`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)

	addModeFlags(editCmd)
	editCmd.Flags().StringVar(&entityID, "entity", "", "entity ID or File: title")
	editCmd.Flags().StringVar(&propertyID, "property", "", "property whose statements are edited")
	editCmd.Flags().StringSliceVar(&statementIDs, "statement", nil, "statement ID to edit (repeatable)")
	editCmd.Flags().Int64Var(&baseRevision, "base-revision", 0, "revision the edit is based on (default: latest)")
	editCmd.Flags().DurationVar(&editTimeout, "timeout", 2*time.Minute, "timeout for the edit")
	_ = editCmd.MarkFlagRequired("entity")
	_ = editCmd.MarkFlagRequired("property")
	_ = editCmd.MarkFlagRequired("statement")
	editCmd.MarkFlagsMutuallyExclusive("set", "increment")
	editCmd.MarkFlagsOneRequired("set", "increment")
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !model.ValidPropertyID(propertyID) {
		return errors.Newf("invalid property ID %q", propertyID)
	}

	edit := batch.SingleEdit{
		EntityID:       entityID,
		PropertyID:     propertyID,
		StatementIDs:   statementIDs,
		BaseRevisionID: baseRevision,
		Increment:      increment,
		Reason:         reason,
		Summary:        summaryText,
	}
	if !increment {
		if edit.Rank, err = model.ParseRank(setRank); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), editTimeout)
	defer cancel()

	p := pipeline.NewPipeline(cfg, pipeline.WithLogger(logging.Get("edit")))
	result, err := p.Edit(ctx, wikiHost, cfg.Auth.AccessToken, edit)
	if err != nil {
		return err
	}

	printEditResult(cmd.OutOrStdout(), result, wikiHost)
	return nil
}
