package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/models"
)

var exams = []models.ExamOption{
	{Index: 0, Label: "1 - UNICAMP 2019"},
	{Index: 1, Label: "2 - USP 2020"},
}

func TestStdinPrompt(t *testing.T) {
	var out bytes.Buffer
	i, err := stdinPrompt(strings.NewReader("abc\n9\n 2 \n"), &out)(exams)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, 2, strings.Count(out.String(), "invalid choice"))
	assert.Contains(t, out.String(), "2 - USP 2020")
}

func TestStdinPromptEOF(t *testing.T) {
	_, err := stdinPrompt(strings.NewReader(""), io.Discard)(exams)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDescribe(t *testing.T) {
	auth := models.NewPipelineError(models.ErrCodeInvalidCredentials, "bad password", nil)
	assert.True(t, strings.HasPrefix(describe(auth), "login failed"))

	structural := fmt.Errorf("stage: %w", models.NewPipelineError(models.ErrCodeDropdownNotFound, "no picker", nil))
	assert.Contains(t, describe(structural), "debug dump")

	assert.Equal(t, "interrupted", describe(context.Canceled))

	partial := fmt.Errorf("extraction interrupted after 3 questions, partial output in out.json: %w", context.Canceled)
	assert.True(t, strings.HasPrefix(describe(partial), "interrupted: "))
	assert.Contains(t, describe(partial), "out.json")
}

func TestCredentialsFallBackToEnv(t *testing.T) {
	t.Setenv("PROVAS_EMAIL", "env@example.com")
	t.Setenv("PROVAS_PASSWORD", "envpass")

	c := credentials("", "")
	assert.Equal(t, "env@example.com", c.Email)
	assert.Equal(t, "envpass", c.Password)

	c = credentials("flag@example.com", "")
	assert.Equal(t, "flag@example.com", c.Email)
}
