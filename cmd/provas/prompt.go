package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/use-agent/provas/models"
	"github.com/use-agent/provas/pipeline"
)

// stdinPrompt shows the exams and reads a 1-based choice from in. Invalid
// answers are asked again; end of input is an error.
func stdinPrompt(in io.Reader, out io.Writer) pipeline.PromptFunc {
	return func(options []models.ExamOption) (int, error) {
		renderExams(out, options)
		sc := bufio.NewScanner(in)
		for {
			fmt.Fprintf(out, "Choose an exam [1-%d]: ", len(options))
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return 0, err
				}
				return 0, io.ErrUnexpectedEOF
			}
			n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
			if err == nil && n >= 1 && n <= len(options) {
				return n - 1, nil
			}
			fmt.Fprintln(out, "invalid choice")
		}
	}
}
