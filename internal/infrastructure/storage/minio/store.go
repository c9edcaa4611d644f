package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// objectStore is the shared put/get/delete core under the typed stores.
type objectStore struct {
	client *Client
	bucket string
	logger logging.Logger
}

func (s *objectStore) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.api.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "upload failed").WithDetailf("key=%s", key)
	}
	s.logger.Debug("object stored",
		logging.String("bucket", s.bucket),
		logging.String("key", key),
		logging.Int("bytes", len(data)))
	return nil
}

func (s *objectStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "download failed").WithDetailf("key=%s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "download failed").WithDetailf("key=%s", key)
	}
	return data, nil
}

func (s *objectStore) delete(ctx context.Context, key string) error {
	if err := s.client.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "delete failed").WithDetailf("key=%s", key)
	}
	return nil
}

func (s *objectStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeInternal, "stat failed").WithDetailf("key=%s", key)
	}
	return true, nil
}

func (s *objectStore) list(ctx context.Context, prefix string) ([]string, error) {
	ch := s.client.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	var keys []string
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeInternal, "list failed")
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Report store
// ─────────────────────────────────────────────────────────────────────────────

// ReportStore archives the JSON result report of each completed screening run.
type ReportStore struct {
	objectStore
}

func NewReportStore(client *Client, log logging.Logger) *ReportStore {
	return &ReportStore{objectStore{client: client, bucket: client.cfg.ReportBucket, logger: log.Named("report_store")}}
}

func reportKey(runID string) string {
	return "runs/" + runID + "/report.json"
}

func (s *ReportStore) Put(ctx context.Context, runID string, report interface{}) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode report")
	}
	return s.put(ctx, reportKey(runID), data, "application/json")
}

func (s *ReportStore) Get(ctx context.Context, runID string, report interface{}) error {
	data, err := s.get(ctx, reportKey(runID))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, report); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode report")
	}
	return nil
}

// DownloadURL returns a presigned link callers can hand to a browser.
func (s *ReportStore) DownloadURL(ctx context.Context, runID string, expiry time.Duration) (string, error) {
	ok, err := s.exists(ctx, reportKey(runID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrObjectNotFound
	}
	return s.client.PresignedGetURL(ctx, s.bucket, reportKey(runID), expiry)
}

// ─────────────────────────────────────────────────────────────────────────────
// Model store
// ─────────────────────────────────────────────────────────────────────────────

// ModelStore persists serialized toxicity models by name, keeping every
// version under a timestamped key with a "latest" alias.
type ModelStore struct {
	objectStore
}

func NewModelStore(client *Client, log logging.Logger) *ModelStore {
	return &ModelStore{objectStore{client: client, bucket: client.cfg.ModelBucket, logger: log.Named("model_store")}}
}

func modelKey(name, version string) string {
	return "models/" + name + "/" + version + ".json"
}

func (s *ModelStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" {
		return "", errors.New(errors.ErrCodeValidation, "model name is required")
	}
	version := time.Now().UTC().Format("20060102T150405Z")
	if err := s.put(ctx, modelKey(name, version), data, "application/json"); err != nil {
		return "", err
	}
	if err := s.put(ctx, modelKey(name, "latest"), data, "application/json"); err != nil {
		return "", err
	}
	return version, nil
}

// Load fetches a model by version; an empty version resolves "latest".
func (s *ModelStore) Load(ctx context.Context, name, version string) ([]byte, error) {
	if version == "" {
		version = "latest"
	}
	return s.get(ctx, modelKey(name, version))
}

func (s *ModelStore) Versions(ctx context.Context, name string) ([]string, error) {
	keys, err := s.list(ctx, "models/"+name+"/")
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(keys))
	for _, key := range keys {
		base := key[len("models/"+name+"/"):]
		v := base[:len(base)-len(".json")]
		if v != "latest" {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func (s *ModelStore) Delete(ctx context.Context, name, version string) error {
	return s.delete(ctx, modelKey(name, version))
}

// ─────────────────────────────────────────────────────────────────────────────
// Depiction store
// ─────────────────────────────────────────────────────────────────────────────

// DepictionStore caches PNG structure drawings keyed by InChIKey so PubChem
// is only asked once per structure.
type DepictionStore struct {
	objectStore
}

func NewDepictionStore(client *Client, log logging.Logger) *DepictionStore {
	return &DepictionStore{objectStore{client: client, bucket: client.cfg.ImageBucket, logger: log.Named("depiction_store")}}
}

func depictionKey(inchiKey string) string {
	return "png/" + inchiKey + ".png"
}

func (s *DepictionStore) Put(ctx context.Context, inchiKey string, png []byte) error {
	return s.put(ctx, depictionKey(inchiKey), png, "image/png")
}

func (s *DepictionStore) Get(ctx context.Context, inchiKey string) ([]byte, error) {
	return s.get(ctx, depictionKey(inchiKey))
}

func (s *DepictionStore) Exists(ctx context.Context, inchiKey string) (bool, error) {
	return s.exists(ctx, depictionKey(inchiKey))
}

func (s *DepictionStore) DownloadURL(ctx context.Context, inchiKey string, expiry time.Duration) (string, error) {
	return s.client.PresignedGetURL(ctx, s.bucket, depictionKey(inchiKey), expiry)
}
