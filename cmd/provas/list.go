package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/provas/models"
	"github.com/use-agent/provas/pipeline"
)

var listFlags struct {
	email    string
	password string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Log in and print the exams available in the picker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		options, err := pipeline.NewRunner(cfg).List(cmd.Context(), credentials(listFlags.email, listFlags.password))
		if err != nil {
			return err
		}
		renderExams(cmd.OutOrStdout(), options)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFlags.email, "email", "e", "", "login email (default $PROVAS_EMAIL)")
	listCmd.Flags().StringVarP(&listFlags.password, "password", "p", "", "login password (default $PROVAS_PASSWORD)")
	rootCmd.AddCommand(listCmd)
}

func renderExams(w io.Writer, options []models.ExamOption) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Exam"})
	for _, o := range options {
		t.AppendRow(table.Row{o.Index + 1, o.Label})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
