package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/provas/models"
	"github.com/use-agent/provas/pipeline"
)

var extractFlags struct {
	email     string
	password  string
	output    string
	limit     int
	examID    int
	examName  string
	examIndex int
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Log in, pick an exam and write its questions as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		params := pipeline.Params{
			Credentials: credentials(extractFlags.email, extractFlags.password),
			OutputPath:  extractFlags.output,
			Limit:       extractFlags.limit,
			Selection: pipeline.Selection{
				ID:    extractFlags.examID,
				Index: extractFlags.examIndex,
				Name:  extractFlags.examName,
			},
		}
		if params.Selection.Empty() {
			params.Prompt = stdinPrompt(os.Stdin, cmd.OutOrStdout())
		}

		res, err := pipeline.NewRunner(cfg).Run(cmd.Context(), params)
		if err != nil {
			return err
		}

		s := res.Report.Stats
		fmt.Fprintf(cmd.OutOrStdout(), "%d questions written to %s (%d with explanation, %d with image, %d annulled)\n",
			s.TotalExtracted, res.Report.OutputFile, s.WithExplanation, s.WithImage, s.Annulled)
		if s.CorrectFallbacks > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d questions had no correct alternative flagged and need review\n", s.CorrectFallbacks)
		}
		if s.ImagesFailed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d images failed to download\n", s.ImagesFailed, s.ImagesTotal)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run report: %s\n", res.ReportPath)
		return nil
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFlags.email, "email", "e", "", "login email (default $PROVAS_EMAIL)")
	f.StringVarP(&extractFlags.password, "password", "p", "", "login password (default $PROVAS_PASSWORD)")
	f.StringVarP(&extractFlags.output, "output", "o", "", "output JSON path (default <output dir>/<institution>-<year>-<ms>.json)")
	f.IntVarP(&extractFlags.limit, "limit", "l", 0, "maximum questions to extract (0 = all)")
	f.IntVar(&extractFlags.examID, "exam-id", 0, "select the exam whose label starts with \"<id> - \"")
	f.StringVar(&extractFlags.examName, "exam-name", "", "select the first exam whose label contains this text")
	f.IntVar(&extractFlags.examIndex, "exam-index", 0, "select the exam at this 1-based position")
	rootCmd.AddCommand(extractCmd)
}

// credentials prefers flags and falls back to the environment.
func credentials(email, password string) models.Credentials {
	if email == "" {
		email = os.Getenv("PROVAS_EMAIL")
	}
	if password == "" {
		password = os.Getenv("PROVAS_PASSWORD")
	}
	return models.Credentials{Email: email, Password: password}
}
