package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SupabaseStorage implements Storage and Signer over the Supabase Storage REST API.
type SupabaseStorage struct {
	client  *http.Client
	baseURL string
	key     string
	bucket  string
	limiter *rate.Limiter
}

// NewSupabaseStorage creates a client for one bucket.
func NewSupabaseStorage(cfg *Config) (*SupabaseStorage, error) {
	if cfg.SupabaseURL == "" {
		return nil, errors.New("supabase URL is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &SupabaseStorage{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/") + "/storage/v1",
		key:     cfg.ServiceKey,
		bucket:  cfg.Bucket,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (s *SupabaseStorage) Put(ctx context.Context, key, contentType string, r io.Reader) (*ObjectInfo, error) {
	// Read fully so the request carries a Content-Length.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPut, s.objectURL("object", key), bytes.NewReader(data), func(h http.Header) {
		h.Set("Content-Type", contentType)
		h.Set("x-upsert", "true")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	resp.Body.Close()

	return &ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType, UpdatedAt: time.Now().UTC()}, nil
}

func (s *SupabaseStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, s.objectURL("object", key), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return resp.Body, nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, s.objectURL("object", key), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	resp.Body.Close()
	return nil
}

type listRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type listEntry struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Metadata  *struct {
		Size     int64  `json:"size"`
		MimeType string `json:"mimetype"`
	} `json:"metadata"`
}

const listPageSize = 1000

// List returns the objects directly under the folder part of prefix whose
// name starts with the rest of prefix.
func (s *SupabaseStorage) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	folder, namePrefix := "", prefix
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		folder, namePrefix = prefix[:i], prefix[i+1:]
	}

	var objects []*ObjectInfo
	for offset := 0; ; offset += listPageSize {
		body, _ := json.Marshal(listRequest{Prefix: folder, Limit: listPageSize, Offset: offset})
		resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/object/list/"+url.PathEscape(s.bucket), bytes.NewReader(body), func(h http.Header) {
			h.Set("Content-Type", "application/json")
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}

		var entries []listEntry
		err = json.NewDecoder(resp.Body).Decode(&entries)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode listing: %w", err)
		}

		for _, e := range entries {
			// Folders come back without metadata.
			if e.Metadata == nil || !strings.HasPrefix(e.Name, namePrefix) {
				continue
			}
			key := e.Name
			if folder != "" {
				key = folder + "/" + e.Name
			}
			objects = append(objects, &ObjectInfo{
				Key:         key,
				Size:        e.Metadata.Size,
				ContentType: e.Metadata.MimeType,
				UpdatedAt:   e.UpdatedAt,
			})
		}
		if len(entries) < listPageSize {
			return objects, nil
		}
	}
}

// Sign returns an absolute URL that grants read access to key for expiresIn.
func (s *SupabaseStorage) Sign(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	resp, err := s.do(ctx, http.MethodPost, s.objectURL("object/sign", key), bytes.NewReader(body), func(h http.Header) {
		h.Set("Content-Type", "application/json")
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	defer resp.Body.Close()

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode signed URL: %w", err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signed URL for %s", key)
	}
	if strings.HasPrefix(out.SignedURL, "http") {
		return out.SignedURL, nil
	}
	return s.baseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

func (s *SupabaseStorage) objectURL(op, key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + op + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/")
}

// do returns the response only for 2xx answers; the caller closes its body.
func (s *SupabaseStorage) do(ctx context.Context, method, endpoint string, body io.Reader, headers func(http.Header)) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if headers != nil {
		headers(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(msg)))
	}
	return nil, fmt.Errorf("storage: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
