package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/primestride/atlas-backend/internal/app"
	"github.com/primestride/atlas-backend/internal/modules/knowledge"
)

var (
	refreshOrg  string
	refreshUser string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh document embeddings for one organization",
	Long: `Embed every document of the organization that is outside the cooldown,
then rename the topic clusters. The run counts against the same per-user
and per-organization budgets as the HTTP endpoint.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshOrg, "org", "", "Organization ID (required)")
	refreshCmd.Flags().StringVar(&refreshUser, "user", "", "User ID recorded as the initiator (required)")
	_ = refreshCmd.MarkFlagRequired("org")
	_ = refreshCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	orgID, err := uuid.Parse(refreshOrg)
	if err != nil {
		return fmt.Errorf("invalid --org: %w", err)
	}
	userID, err := uuid.Parse(refreshUser)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Knowledge.RefreshEmbeddings(ctx, knowledge.RefreshInput{
		OrganizationID: orgID,
		UserID:         userID,
	})
	var rl *knowledge.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("refresh rejected: %s", rl.Error())
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
