// Package classifier defines the image classification capability used by
// the monitor and the adapters that provide it.
package classifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"
)

const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.2
)

var (
	// ErrUnavailable means no model could be loaded or inference failed.
	ErrUnavailable    = errors.New("classifier unavailable")
	ErrUnknownBackend = errors.New("unknown classifier backend")
)

// Result holds labels sorted by descending score.
type Result struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

func (r Result) Empty() bool {
	return len(r.Labels) == 0
}

// String formats the result as "(87% cat), (12% dog)".
func (r Result) String() string {
	parts := make([]string, 0, len(r.Labels))
	for i, l := range r.Labels {
		parts = append(parts, fmt.Sprintf("(%.0f%% %s)", r.Scores[i]*100, l))
	}
	return strings.Join(parts, ", ")
}

// Classifier returns one Result per input image, in input order.
type Classifier interface {
	Predict(ctx context.Context, images []image.Image) ([]Result, error)
}

// Postprocess keeps the topK highest scores, then drops everything at or
// below threshold.
func Postprocess[T float32 | float64](scores []T, labels []string, topK int, threshold float64) Result {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if topK > 0 && len(idx) > topK {
		idx = idx[:topK]
	}

	var res Result
	for _, i := range idx {
		s := float64(scores[i])
		if s <= threshold {
			continue
		}
		label := fmt.Sprintf("class_%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		res.Labels = append(res.Labels, label)
		res.Scores = append(res.Scores, s)
	}
	return res
}

// LoadLabels reads one label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}
