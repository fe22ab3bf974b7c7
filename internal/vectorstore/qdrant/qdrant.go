package qdrant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"compliance/internal/domain"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Storage keeps one index in a Qdrant collection using Euclid distance.
type Storage struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	apiKey      string
	timeout     time.Duration
}

type Config struct {
	Addr       string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New connects to Qdrant's gRPC endpoint.
func New(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name required")
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "dial qdrant %s", cfg.Addr)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a store over existing service clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		points:      points,
		collections: collections,
		collection:  cfg.Collection,
		apiKey:      cfg.APIKey,
		timeout:     timeout,
	}
}

// Collection returns the name of the backing collection.
func (s *Storage) Collection() string { return s.collection }

func (s *Storage) call(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	if s.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
	}
	return ctx, cancel
}

// Init creates the collection if it does not exist yet.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "create collection %s", s.collection)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(c.ChunkID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: payloadOf(c),
		}
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return errors.Wrapf(err, "upsert %d points", len(points))
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "qdrant search")
	}
	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		results = append(results, domain.SearchResult{
			Chunk: chunkOf(r.GetPayload()),
			Score: r.GetScore(),
		})
	}
	return results, nil
}

// Chunks scrolls through the whole collection.
func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	var (
		out    []domain.Chunk
		offset *pb.PointId
		limit  = uint32(256)
	)
	for {
		callCtx, cancel := s.call(ctx)
		resp, err := s.points.Scroll(callCtx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "qdrant scroll")
		}
		for _, p := range resp.GetResult() {
			out = append(out, chunkOf(p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return out, nil
		}
	}
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return errors.Wrapf(err, "delete collection %s", s.collection)
	}
	return nil
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, errors.Wrap(err, "list collections")
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// Flush is a no-op: upserts wait for the write to be applied.
func (s *Storage) Flush(context.Context) error { return nil }

func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// pointID maps chunk IDs that are not UUIDs onto a stable name-based UUID.
func pointID(chunkID string) string {
	if id, err := uuid.Parse(chunkID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func payloadOf(c domain.Chunk) map[string]*pb.Value {
	str := func(v string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }
	return map[string]*pb.Value{
		"document_id": str(c.DocumentID),
		"chunk_id":    str(c.ChunkID),
		"text":        str(c.Text),
		"language":    str(string(c.Language)),
		"source":      str(c.Source),
		"index":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
	}
}

func chunkOf(payload map[string]*pb.Value) domain.Chunk {
	return domain.Chunk{
		DocumentID: payload["document_id"].GetStringValue(),
		ChunkID:    payload["chunk_id"].GetStringValue(),
		Text:       payload["text"].GetStringValue(),
		Language:   domain.Language(payload["language"].GetStringValue()),
		Source:     payload["source"].GetStringValue(),
		Index:      int(payload["index"].GetIntegerValue()),
	}
}
