package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/models"
)

var scraped = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func opts() Options {
	return Options{Source: "rawles", PipelineVersion: "1.0.0", ScrapedAt: scraped}
}

func sample() models.CapturedQuestion {
	return models.CapturedQuestion{
		ID:   1005,
		Code: "UNICAMP-2019-05",
		Exam: models.ExamInfo{
			ID: 77, Code: "UNICAMP-2019", Institution: "UNICAMP",
			State: "SP", Group: "R1", Year: 2019,
		},
		Statement: "<p>Qual a dose?</p>",
		Alternatives: []models.Alternative{
			{ID: 11, Letter: "A", Text: "1 mg"},
			{ID: 12, Letter: "B", Text: "2 mg"},
			{ID: 13, Letter: "C", Text: "3 mg", IsCorrect: true},
			{ID: 14, Letter: "D", Text: "4 mg"},
		},
		Explanation: &models.Explanation{Text: "Dose padrão", Image: "https://cdn.example.com/exp/9.png"},
	}
}

func TestTransformResolvesCorrectByIdentity(t *testing.T) {
	out := Transform(sample(), opts())

	assert.Equal(t, "rawles-1005", out.ID)
	require.Len(t, out.Alternatives, 4)
	assert.Equal(t, "rawles-1005-a", out.Alternatives[0].ID)
	assert.Equal(t, "rawles-1005-c", out.CorrectAlternative)
	assert.NotEqual(t, out.Alternatives[0].ID, out.CorrectAlternative)
	assert.False(t, out.Metadata.NeedsReview)
	assert.Empty(t, out.Metadata.ReviewReason)
}

func TestTransformMetadata(t *testing.T) {
	out := Transform(sample(), opts())

	md := out.Metadata
	assert.Equal(t, "rawles", md.Source)
	assert.Equal(t, int64(1005), md.SourceID)
	assert.Equal(t, "UNICAMP-2019-05", md.SourceCode)
	assert.Equal(t, int64(77), md.SourceExamID)
	assert.Equal(t, []int64{11, 12, 13, 14}, md.SourceAltIDs)
	assert.Equal(t, scraped, md.ScrapedAt)
	assert.Equal(t, "1.0.0", md.PipelineVersion)

	assert.Equal(t, "Dose padrão", out.Explanation)
	assert.Equal(t, "https://cdn.example.com/exp/9.png", out.ExplanationImage)
	assert.Equal(t, "UNICAMP", out.Institution)
	assert.Equal(t, 2019, out.Year)
	assert.Equal(t, "UNICAMP-2019", out.ExamCode)
}

func TestTransformIsDeterministic(t *testing.T) {
	assert.Equal(t, Transform(sample(), opts()), Transform(sample(), opts()))
}

func TestCorrectFallbackIsFlagged(t *testing.T) {
	q := sample()
	for i := range q.Alternatives {
		q.Alternatives[i].IsCorrect = false
	}

	out, fallbacks := TransformAll([]models.CapturedQuestion{q, sample()}, opts())
	require.Len(t, out, 2)
	assert.Equal(t, 1, fallbacks)

	assert.Equal(t, "rawles-1005-a", out[0].CorrectAlternative)
	assert.True(t, out[0].Metadata.NeedsReview)
	assert.Equal(t, ReasonNoCorrectFlag, out[0].Metadata.ReviewReason)
	assert.False(t, out[1].Metadata.NeedsReview)
}

func TestResolveCorrect(t *testing.T) {
	tests := []struct {
		name     string
		alts     []models.Alternative
		pos      int
		fallback bool
	}{
		{"flagged last", []models.Alternative{{}, {}, {IsCorrect: true}}, 2, false},
		{"flagged first", []models.Alternative{{IsCorrect: true}, {}}, 0, false},
		{"none flagged", []models.Alternative{{}, {}}, 0, true},
		{"empty", nil, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, fallback := ResolveCorrect(tt.alts)
			assert.Equal(t, tt.pos, pos)
			assert.Equal(t, tt.fallback, fallback)
		})
	}
}

func TestAlternativeIDWithoutLetter(t *testing.T) {
	assert.Equal(t, "rawles-1-alt3", AlternativeID("rawles-1", " ", 2))
	assert.Equal(t, "rawles-1-e", AlternativeID("rawles-1", "E", 4))
}

func TestTags(t *testing.T) {
	q := sample()
	assert.Equal(t, []string{"UNICAMP-2019", "UNICAMP", "R1", "SP", "2019"}, Tags(q))

	q.Annulled = true
	q.Exam.Group = ""
	assert.Equal(t, []string{"UNICAMP-2019", "UNICAMP", "SP", "2019", "annulled"}, Tags(q))
}

func TestInsertStatementImages(t *testing.T) {
	st := "<p>Veja a figura</p>"
	assert.Equal(t, st, InsertStatementImages(st, nil, "/images/questoes"))

	out := InsertStatementImages(st, []string{
		`C:\cache\img-aa.png`,
		"public/images/questoes/img-bb.jpg",
	}, "/images/questoes/")

	assert.True(t, strings.HasPrefix(out, st))
	assert.Contains(t, out, `src="/images/questoes/img-aa.png"`)
	assert.Contains(t, out, `src="/images/questoes/img-bb.jpg"`)
	assert.Contains(t, out, `alt="Imagem da questão 1"`)
	assert.Contains(t, out, `alt="Imagem da questão 2"`)
	assert.Less(t, strings.Index(out, "img-aa"), strings.Index(out, "img-bb"))
}

func TestImageURLs(t *testing.T) {
	q := sample()
	q.Image = "https://cdn.example.com/q/1.png"
	q.Statement = `<p>Texto <img src="https://cdn.example.com/q/2.gif"> e ` +
		`<img src="https://cdn.example.com/q/1.png"><img src="data:image/png;base64,AAAA"></p>`

	assert.Equal(t, []string{
		"https://cdn.example.com/q/1.png",
		"https://cdn.example.com/exp/9.png",
		"https://cdn.example.com/q/2.gif",
	}, ImageURLs(q))

	other := sample()
	other.ID = 1006
	all := CollectImageURLs([]models.CapturedQuestion{q, other})
	assert.Len(t, all, 3)
}

func TestLocalize(t *testing.T) {
	q := sample()
	q.Image = "https://cdn.example.com/q/1.png"
	q.Statement = `<p>Figura: <img src="https://cdn.example.com/q/2.gif"></p>`
	out := Transform(q, opts())

	local := map[string]string{
		"https://cdn.example.com/q/1.png":   "public/images/questoes/img-1.png",
		"https://cdn.example.com/q/2.gif":   "public/images/questoes/img-2.gif",
		"https://cdn.example.com/exp/9.png": "public/images/questoes/img-9.png",
	}
	Localize(&out, q, local, "/images/questoes")

	assert.NotContains(t, out.Statement, "cdn.example.com")
	assert.Contains(t, out.Statement, `src="/images/questoes/img-2.gif"`)
	assert.Contains(t, out.Statement, `src="/images/questoes/img-1.png"`)
	assert.Equal(t, "/images/questoes/img-9.png", out.ExplanationImage)
	assert.Equal(t, []string{
		"/images/questoes/img-1.png",
		"/images/questoes/img-9.png",
		"/images/questoes/img-2.gif",
	}, out.Images)
}

func TestLocalizeKeepsRemoteOnFailedDownload(t *testing.T) {
	q := sample()
	q.Image = "https://cdn.example.com/q/1.png"
	out := Transform(q, opts())

	Localize(&out, q, map[string]string{}, "/images/questoes")

	assert.Equal(t, q.Statement, out.Statement)
	assert.Nil(t, out.Images)
	assert.Equal(t, "https://cdn.example.com/exp/9.png", out.ExplanationImage)
}
