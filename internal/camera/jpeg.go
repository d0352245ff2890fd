package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const DefaultTimeout = 5 * time.Second

type JPEGOptions struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration
}

type authScheme int

const (
	authNone authScheme = iota
	authDigest
	authBasic
)

func (a authScheme) String() string {
	switch a {
	case authDigest:
		return "digest"
	case authBasic:
		return "basic"
	default:
		return "none"
	}
}

// JPEGClient polls a camera snapshot URL.
type JPEGClient struct {
	opts   JPEGOptions
	client *http.Client
	scheme authScheme
	log    zerolog.Logger
}

// NewJPEGClient negotiates authentication right away: Digest first, then
// Basic. When both fail the client stays invalid.
func NewJPEGClient(ctx context.Context, opts JPEGOptions, logger zerolog.Logger) *JPEGClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	c := &JPEGClient{opts: opts, log: logger.With().Str("url", opts.URL).Logger()}
	c.negotiate(ctx)
	return c
}

func (c *JPEGClient) negotiate(ctx context.Context) {
	digestClient := &http.Client{
		Timeout: c.opts.Timeout,
		Transport: &digest.Transport{
			Username: c.opts.User,
			Password: c.opts.Password,
		},
	}
	_, err := c.get(ctx, digestClient, false)
	if err == nil {
		c.client, c.scheme = digestClient, authDigest
		c.log.Info().Str("auth", c.scheme.String()).Msg("Camera session established")
		return
	}
	c.log.Debug().Err(err).Msg("Digest auth probe failed, trying basic")

	basicClient := &http.Client{Timeout: c.opts.Timeout}
	if _, err = c.get(ctx, basicClient, true); err == nil {
		c.client, c.scheme = basicClient, authBasic
		c.log.Info().Str("auth", c.scheme.String()).Msg("Camera session established")
		return
	}

	c.log.Warn().Err(err).Msg("Camera rejected both digest and basic auth")
}

func (c *JPEGClient) get(ctx context.Context, client *http.Client, basic bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if basic {
		req.SetBasicAuth(c.opts.User, c.opts.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("bad response: %s. Check url", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *JPEGClient) Snapshot(ctx context.Context) (*models.Frame, error) {
	if c.scheme == authNone {
		return nil, ErrInvalidSession
	}

	body, err := c.get(ctx, c.client, c.scheme == authBasic)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image bytes: %w", err)
	}
	return &models.Frame{Image: img, Timestamp: time.Now()}, nil
}

func (c *JPEGClient) Valid() bool {
	return c.scheme != authNone
}

func (c *JPEGClient) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}
