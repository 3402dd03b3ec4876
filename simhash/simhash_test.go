package simhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"the", "quick", "brown", "fox"})
	assert.Equal(t, a, Fingerprint([]string{"the", "quick", "brown", "fox"}))
	assert.NotZero(t, Fingerprint([]string{"hello"}))
	assert.Zero(t, Fingerprint(nil))
}

func TestWordsIgnoresMarkup(t *testing.T) {
	words := Words(`<p>Qual é o <b>VALOR</b> de x?</p><p><img src="https://cdn/a.png" alt="figura"></p>`)
	assert.Equal(t, []string{"qual", "é", "o", "valor", "de", "x?"}, words)
}

func TestStatementIgnoresFormatting(t *testing.T) {
	a := Statement("<p>Calcule a área do triângulo retângulo de catetos 3 e 4</p>")
	assert.NotZero(t, a)
	assert.Equal(t, a, Statement("<div><strong>Calcule</strong> a área do <em>triângulo retângulo</em> de catetos 3 e 4</div>"))
}

func TestStatementTooShort(t *testing.T) {
	assert.Zero(t, Statement("<p>Questão 1</p>"))
}

func TestNearDuplicates(t *testing.T) {
	long := "um trem parte da estação A às 8h com velocidade constante de 60 km/h em direção à estação B"
	fps := []uint64{
		Statement("<p>" + long + "</p>"),
		Statement("<p>Assinale a alternativa correta sobre a fotossíntese das plantas verdes</p>"),
		Statement("<p>" + long + "</p><p><img src=\"x.png\"></p>"),
		0,
	}

	pairs := NearDuplicates(fps, 3)
	assert.Equal(t, []Pair{{A: 0, B: 2, Distance: 0}}, pairs)
}

func TestNearDuplicatesSkipsEmpty(t *testing.T) {
	assert.Empty(t, NearDuplicates([]uint64{0, 0}, 64))
}
