// Package artifacts moves per-instance result files between the local
// workspace and an S3-compatible object store. Objects are namespaced by a
// run-scoped prefix so instances never overwrite each other.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds object store connection settings.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Glob      string `yaml:"glob"`
}

// Enabled reports whether an object store is configured at all.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate checks the config for use. The endpoint must be host:port without
// a scheme; the client derives the scheme from UseSSL.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("artifacts: endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("artifacts: endpoint %q must not include a scheme", c.Endpoint)
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("artifacts: access and secret keys are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("artifacts: bucket is required")
	}
	return nil
}

// Store is an object store client scoped to one bucket.
type Store struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// New connects to the configured object store. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: connect %s: %w", cfg.Endpoint, err)
	}
	return &Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

// UploadGlob uploads every file under dir matching pattern to prefix/<name>.
// It returns the object names uploaded.
func (s *Store) UploadGlob(ctx context.Context, dir, pattern, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("artifacts: glob %q: %w", pattern, err)
	}

	var uploaded []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return uploaded, fmt.Errorf("artifacts: stat %s: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		object := path.Join(prefix, filepath.Base(match))
		if _, err := s.client.FPutObject(ctx, s.bucket, object, match, minio.PutObjectOptions{}); err != nil {
			return uploaded, fmt.Errorf("artifacts: upload %s: %w", object, err)
		}
		s.log.Debug("uploaded artifact", zap.String("object", object))
		uploaded = append(uploaded, object)
	}
	return uploaded, nil
}

// DownloadGlob fetches every object under prefix whose base name matches
// pattern into dest, concurrently. It returns the local paths written.
func (s *Store) DownloadGlob(ctx context.Context, prefix, pattern, dest string) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", dest, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	var mu sync.Mutex
	var fetched []string
	var listErr error
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			listErr = fmt.Errorf("artifacts: list %s: %w", prefix, object.Err)
			break
		}
		name := path.Base(object.Key)
		ok, err := path.Match(pattern, name)
		if err != nil {
			listErr = fmt.Errorf("artifacts: pattern %q: %w", pattern, err)
			break
		}
		if !ok {
			continue
		}
		key := object.Key
		local := filepath.Join(dest, name)
		g.Go(func() error {
			if err := s.client.FGetObject(ctx, s.bucket, key, local, minio.GetObjectOptions{}); err != nil {
				return fmt.Errorf("artifacts: download %s: %w", key, err)
			}
			mu.Lock()
			fetched = append(fetched, local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fetched, err
	}
	if listErr != nil {
		return fetched, listErr
	}
	s.log.Debug("downloaded artifacts", zap.Int("count", len(fetched)), zap.String("prefix", prefix))
	return fetched, nil
}
