package classifier

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostprocessTopKThenThreshold(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e", "f", "g"}
	scores := []float32{0.05, 0.3, 0.25, 0.9, 0.21, 0.22, 0.23}

	res := Postprocess(scores, labels, 5, 0.2)
	assert.Equal(t, []string{"d", "b", "c", "g", "f"}, res.Labels)
	require.Len(t, res.Scores, 5)
	assert.InDelta(t, 0.9, res.Scores[0], 1e-6)

	res = Postprocess(scores, labels, 2, 0.5)
	assert.Equal(t, []string{"d"}, res.Labels)

	assert.True(t, Postprocess([]float64{0.1, 0.2}, []string{"x", "y"}, 5, 0.2).Empty())
}

func TestResultString(t *testing.T) {
	r := Result{Labels: []string{"cat", "dog"}, Scores: []float64{0.87, 0.12}}
	assert.Equal(t, "(87% cat), (12% dog)", r.String())
	assert.Equal(t, "", Result{}.String())
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\n\n dog \nbird\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "bird"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSoftmaxIfNeeded(t *testing.T) {
	probs := []float32{0.7, 0.2, 0.1}
	assert.Equal(t, probs, softmaxIfNeeded(probs))

	out := softmaxIfNeeded([]float32{2, 1, 0})
	var sum float32
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, out[0], out[1])
}

func TestHTTPPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(10<<20))
		files := r.MultipartForm.File["file"]
		assert.Equal(t, "mobilenet", r.FormValue("model"))

		out := make([]Result, len(files))
		for i := range files {
			out[i] = Result{Labels: []string{"cat", "dog", "car"}, Scores: []float64{0.8, 0.15, 0.05}}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "mobilenet", 5, 0.1, time.Second)
	imgs := []image.Image{image.NewRGBA(image.Rect(0, 0, 8, 8)), image.NewRGBA(image.Rect(0, 0, 4, 4))}

	res, err := c.Predict(context.Background(), imgs)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []string{"cat", "dog"}, res[1].Labels)
}

func TestHTTPPredictBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "", 5, 0.2, time.Second)
	_, err := c.Predict(context.Background(), []image.Image{image.NewRGBA(image.Rect(0, 0, 2, 2))})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoad(t *testing.T) {
	_, err := Load(Options{Backend: "tflite"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Load(Options{Backend: BackendHTTP})
	assert.ErrorIs(t, err, ErrUnavailable)

	c, err := Load(Options{Backend: BackendHTTP, Endpoint: "http://localhost:8000"})
	require.NoError(t, err)
	h, ok := c.(*HTTP)
	require.True(t, ok)
	assert.Equal(t, DefaultTopK, h.TopK)
	assert.Equal(t, DefaultScoreThreshold, h.Threshold)
}
