package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/samber/lo"
)

// HTTP sends crops to a remote inference service.
type HTTP struct {
	URL       string
	Model     string
	TopK      int
	Threshold float64
	client    *http.Client
}

func NewHTTP(baseURL, model string, topK int, threshold float64, timeout time.Duration) *HTTP {
	return &HTTP{
		URL:       baseURL,
		Model:     model,
		TopK:      topK,
		Threshold: threshold,
		client:    &http.Client{Timeout: timeout},
	}
}

// Predict posts every image as a "file" part of one multipart request to
// /predict and expects a JSON array with one result per part.
func (c *HTTP) Predict(ctx context.Context, images []image.Image) ([]Result, error) {
	if len(images) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="roi-%d.jpg"`, i))
		h.Set("Content-Type", "image/jpeg")

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create form part: %w", err)
		}
		if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode image %d: %w", i, err)
		}
	}
	if c.Model != "" {
		if err := writer.WriteField("model", c.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: bad status: %s, error: %s", ErrUnavailable, resp.Status, bodyBytes)
	}

	var raw []Result
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if len(raw) != len(images) {
		return nil, fmt.Errorf("got %d predictions for %d images", len(raw), len(images))
	}

	return lo.Map(raw, func(r Result, _ int) Result {
		return Postprocess(r.Scores, r.Labels, c.TopK, c.Threshold)
	}), nil
}
