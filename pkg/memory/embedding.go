package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/theapemachine/recall/pkg/errors"
)

/*
DeterministicEmbedder is the fallback used when no learned embedding model is
plugged in. Identical text always maps to the identical unit vector; it does
not capture meaning.
*/
type DeterministicEmbedder struct {
	Dim int
}

func NewDeterministicEmbedder(dim int) (*DeterministicEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", errors.ErrInvalidConfig, dim)
	}

	return &DeterministicEmbedder{Dim: dim}, nil
}

func (embedder *DeterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DeterministicVector(text, embedder.Dim), nil
}

func (embedder *DeterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		out[i], _ = embedder.Embed(ctx, text)
	}

	return out, nil
}

/*
DeterministicVector seeds a splitmix64 stream with the FNV-64a hash of text
and maps each draw through sin into [0,1] before normalizing.
*/
func DeterministicVector(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	raw := make([]float64, dim)

	for i := range raw {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31

		unit := float64(z>>11) / float64(1<<53)
		raw[i] = math.Sin(2*math.Pi*unit*float64(i+1))*0.5 + 0.5
	}

	return Normalize(raw)
}

// Normalize scales v to unit length. A zero vector maps onto the uniform one.
func Normalize[T float32 | float64](v []T) []float32 {
	var sum float64

	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))

	if sum == 0 {
		uniform := float32(1 / math.Sqrt(float64(len(v))))

		for i := range out {
			out[i] = uniform
		}

		return out
	}

	norm := math.Sqrt(sum)

	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out
}

// CosineSimilarity returns 0 when the vectors differ in length or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
