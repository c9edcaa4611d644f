package milvus

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const (
	fieldID          = "id"
	fieldInChIKey    = "inchi_key"
	fieldSMILES      = "smiles"
	fieldFingerprint = "fingerprint"

	collectionSuffix = "_fingerprints"
	shardsNum        = int32(2)
	loadTimeout      = 2 * time.Minute
)

// Entry is one molecule row in the fingerprint collection.
type Entry struct {
	ID          string
	InChIKey    string
	SMILES      string
	Fingerprint []byte
}

// FingerprintIndex manages the binary-vector collection holding one Morgan
// fingerprint per registered molecule.
type FingerprintIndex struct {
	client *Client
	logger logging.Logger
}

func NewFingerprintIndex(client *Client, log logging.Logger) *FingerprintIndex {
	return &FingerprintIndex{client: client, logger: log.Named("fingerprint_index")}
}

func (x *FingerprintIndex) CollectionName() string {
	return x.client.cfg.CollectionPrefix + collectionSuffix
}

func (x *FingerprintIndex) schema() *entity.Schema {
	bits := x.client.cfg.FingerprintBits
	return &entity.Schema{
		CollectionName: x.CollectionName(),
		Description:    "Morgan fingerprints of registered molecules",
		Fields: []*entity.Field{
			{Name: fieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"}},
			{Name: fieldInChIKey, DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"}},
			{Name: fieldSMILES, DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"}},
			{Name: fieldFingerprint, DataType: entity.FieldTypeBinaryVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(bits)}},
		},
	}
}

// Ensure creates the collection and its JACCARD index on first use and loads
// it into memory. Safe to call on every startup.
func (x *FingerprintIndex) Ensure(ctx context.Context) error {
	name := x.CollectionName()
	mc := x.client.raw()

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check fingerprint collection")
	}
	if !has {
		if err := mc.CreateCollection(ctx, x.schema(), shardsNum); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create fingerprint collection")
		}

		nlist := x.client.cfg.IndexNList
		if nlist <= 0 {
			nlist = 128
		}
		idx, err := entity.NewIndexBinIvfFlat(entity.JACCARD, nlist)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to build index definition")
		}
		if err := mc.CreateIndex(ctx, name, fieldFingerprint, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create fingerprint index")
		}
		x.logger.Info("fingerprint collection created",
			logging.String("collection", name),
			logging.Int("nlist", nlist))
	}

	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	if err := mc.LoadCollection(loadCtx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load fingerprint collection")
	}
	return nil
}

// Add upserts entries so re-registering a molecule refreshes its vector.
func (x *FingerprintIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	wantBytes := x.client.cfg.FingerprintBits / 8

	ids := make([]string, len(entries))
	keys := make([]string, len(entries))
	smiles := make([]string, len(entries))
	vectors := make([][]byte, len(entries))
	for i, e := range entries {
		if len(e.Fingerprint) != wantBytes {
			return errors.Newf(errors.ErrCodeValidation,
				"fingerprint must be %d bytes, got %d", wantBytes, len(e.Fingerprint))
		}
		ids[i] = e.ID
		keys[i] = e.InChIKey
		smiles[i] = e.SMILES
		vectors[i] = e.Fingerprint
	}

	_, err := x.client.raw().Upsert(ctx, x.CollectionName(), "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldInChIKey, keys),
		entity.NewColumnVarChar(fieldSMILES, smiles),
		entity.NewColumnBinaryVector(fieldFingerprint, x.client.cfg.FingerprintBits, vectors),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert fingerprints")
	}

	x.logger.Debug("fingerprints indexed", logging.Int("count", len(entries)))
	return nil
}

// Remove deletes entries by molecule ID.
func (x *FingerprintIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var expr strings.Builder
	expr.WriteString(fieldID + " in [")
	for i, id := range ids {
		if i > 0 {
			expr.WriteByte(',')
		}
		expr.WriteString(strconv.Quote(id))
	}
	expr.WriteByte(']')

	if err := x.client.raw().Delete(ctx, x.CollectionName(), "", expr.String()); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete fingerprints")
	}
	return nil
}

// Count returns the number of indexed molecules.
func (x *FingerprintIndex) Count(ctx context.Context) (int64, error) {
	stats, err := x.client.raw().GetCollectionStatistics(ctx, x.CollectionName())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read collection statistics")
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "unparseable row_count").WithDetailf("row_count=%s", raw)
	}
	return n, nil
}

// Drop removes the whole collection. Used by maintenance tooling only.
func (x *FingerprintIndex) Drop(ctx context.Context) error {
	if err := x.client.raw().DropCollection(ctx, x.CollectionName()); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to drop fingerprint collection")
	}
	x.logger.Warn("fingerprint collection dropped", logging.String("collection", x.CollectionName()))
	return nil
}
