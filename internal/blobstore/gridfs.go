package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const (
	gridfsMinBackoff = time.Second
	gridfsMaxBackoff = 30 * time.Second
)

// GridFSConfig points the database backend at a MongoDB deployment.
type GridFSConfig struct {
	URI       string
	Database  string
	Bucket    string
	ChunkSize int
}

// GridFSBlobs is the database backend on MongoDB GridFS. It reports
// unavailable until Connect succeeds.
type GridFSBlobs struct {
	cfg    GridFSConfig
	logger *slog.Logger

	mu     sync.RWMutex
	client *mongo.Client
	bucket *gridfs.Bucket
	ready  atomic.Bool
}

type gridfsFileDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
}

// NewGridFSBlobs returns an unconnected backend.
func NewGridFSBlobs(cfg GridFSConfig, logger *slog.Logger) (*GridFSBlobs, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		cfg.Bucket = "fs"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GridFSBlobs{cfg: cfg, logger: logger}, nil
}

// Connect dials MongoDB, retrying with backoff until it succeeds or ctx ends.
// Run it in its own goroutine; writes fall back while it is pending.
func (g *GridFSBlobs) Connect(ctx context.Context) error {
	backoff := gridfsMinBackoff
	for {
		err := g.connectOnce(ctx)
		if err == nil {
			g.logger.Info("gridfs backend ready", "database", g.cfg.Database, "bucket", g.cfg.Bucket)
			return nil
		}
		g.logger.Warn("gridfs connect failed", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > gridfsMaxBackoff {
			backoff = gridfsMaxBackoff
		}
	}
}

func (g *GridFSBlobs) connectOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(g.cfg.URI))
	if err != nil {
		return err
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}
	bucketOpts := options.GridFSBucket().SetName(g.cfg.Bucket).SetChunkSizeBytes(int32(g.cfg.ChunkSize))
	bucket, err := gridfs.NewBucket(client.Database(g.cfg.Database), bucketOpts)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	g.mu.Lock()
	g.client = client
	g.bucket = bucket
	g.mu.Unlock()
	g.ready.Store(true)
	return nil
}

func (g *GridFSBlobs) Kind() models.StorageBackend {
	return models.StorageDatabase
}

func (g *GridFSBlobs) Available() bool {
	return g != nil && g.ready.Load()
}

func (g *GridFSBlobs) currentBucket() (*gridfs.Bucket, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.bucket == nil {
		return nil, ErrUnavailable
	}
	return g.bucket, nil
}

func (g *GridFSBlobs) Write(ctx context.Context, content io.Reader, suggestedName string) (WriteResult, error) {
	var zero WriteResult
	bucket, err := g.currentBucket()
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	counter := &countingReader{r: content}
	oid, err := bucket.UploadFromStream(suggestedName, counter)
	if err != nil {
		return zero, storageFailure(g.Kind(), "write", err)
	}
	return WriteResult{Ref: oid.Hex(), Size: counter.n}, nil
}

func (g *GridFSBlobs) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	rc, err := g.OpenStream(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, storageFailure(g.Kind(), "read", err)
	}
	return data, nil
}

func (g *GridFSBlobs) OpenStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	bucket, err := g.currentBucket()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(ref))
	if err != nil {
		return nil, ErrNotFound
	}
	stream, err := bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageFailure(g.Kind(), "open", err)
	}
	return stream, nil
}

func (g *GridFSBlobs) Delete(ctx context.Context, ref string) (bool, error) {
	bucket, err := g.currentBucket()
	if err != nil {
		return false, err
	}
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(ref))
	if err != nil {
		return false, nil
	}
	if err := bucket.DeleteContext(ctx, oid); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return false, nil
		}
		return false, storageFailure(g.Kind(), "delete", err)
	}
	return true, nil
}

func (g *GridFSBlobs) Exists(ctx context.Context, ref string) (bool, error) {
	bucket, err := g.currentBucket()
	if err != nil {
		return false, err
	}
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(ref))
	if err != nil {
		return false, nil
	}
	cursor, err := bucket.FindContext(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, storageFailure(g.Kind(), "stat", err)
	}
	defer cursor.Close(ctx)
	found := cursor.Next(ctx)
	if err := cursor.Err(); err != nil {
		return false, storageFailure(g.Kind(), "stat", err)
	}
	return found, nil
}

func (g *GridFSBlobs) List(ctx context.Context, fn func(BlobInfo) error) error {
	bucket, err := g.currentBucket()
	if err != nil {
		return err
	}
	cursor, err := bucket.FindContext(ctx, bson.D{})
	if err != nil {
		return storageFailure(g.Kind(), "list", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc gridfsFileDoc
		if err := cursor.Decode(&doc); err != nil {
			return storageFailure(g.Kind(), "list", err)
		}
		if err := fn(BlobInfo{Ref: doc.ID.Hex(), Size: doc.Length, CreatedAt: doc.UploadDate.UTC()}); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return storageFailure(g.Kind(), "list", err)
	}
	return nil
}

func (g *GridFSBlobs) Close() error {
	if g == nil {
		return nil
	}
	g.ready.Store(false)
	g.mu.Lock()
	client := g.client
	g.client = nil
	g.bucket = nil
	g.mu.Unlock()
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}
