package recognize

import (
	"context"
	"image"
	"sort"

	"lpr-service/internal/domain/lpr"
)

// Recognizer reads text from a plate crop. Tokens are returned in the order the
// underlying engine reports them; that order is not guaranteed to be left to
// right.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]lpr.Token, error)
}

type RecognizerFunc func(ctx context.Context, img image.Image) ([]lpr.Token, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) ([]lpr.Token, error) {
	return f(ctx, img)
}

// OrderTokens returns tokens unchanged unless sortByX is set, in which case
// they are stably sorted by the left edge of their boxes. Sorting is skipped
// when any token has no box, since position is then unknown.
func OrderTokens(tokens []lpr.Token, sortByX bool) []lpr.Token {
	if !sortByX || len(tokens) < 2 {
		return tokens
	}
	for _, t := range tokens {
		if t.Box.Empty() {
			return tokens
		}
	}
	sorted := make([]lpr.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.Min.X < sorted[j].Box.Min.X
	})
	return sorted
}
