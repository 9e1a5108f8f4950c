package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB collection names
const (
	MongoDBName           = "finproof"
	MongoSeriesCollection = "market_series"

	seriesCacheTTL = time.Hour
)

// MongoCache caches fetched market series in MongoDB so restarts and
// multiple instances share one upstream quota.
type MongoCache struct {
	client   *mongo.Client
	database *mongo.Database
}

// mongoSeriesDoc is a cached series document.
type mongoSeriesDoc struct {
	ID        string    `bson:"_id"` // symbol|period
	Symbol    string    `bson:"symbol"`
	Period    string    `bson:"period"`
	UpdatedAt time.Time `bson:"updated_at"`
	Candles   []Candle  `bson:"candles"`
}

// NewMongoCache connects to MongoDB. Returns nil without error when uri is
// empty so callers can treat the cache as optional.
func NewMongoCache(uri string) (*MongoCache, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, market data cache disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	log.Println("Market data MongoDB cache connected")
	return &MongoCache{
		client:   client,
		database: client.Database(MongoDBName),
	}, nil
}

// GetSeries returns a cached series if it is fresh enough.
func (m *MongoCache) GetSeries(ctx context.Context, symbol, period string) (*Series, bool) {
	var doc mongoSeriesDoc
	err := m.database.Collection(MongoSeriesCollection).
		FindOne(ctx, bson.M{"_id": seriesKey(symbol, period)}).
		Decode(&doc)
	if err != nil {
		return nil, false
	}
	if time.Since(doc.UpdatedAt) > seriesCacheTTL {
		return nil, false
	}
	return &Series{Symbol: doc.Symbol, Period: doc.Period, Candles: doc.Candles}, true
}

// PutSeries upserts a fetched series. Cache writes are best-effort; a
// failed write only costs an extra upstream fetch later.
func (m *MongoCache) PutSeries(ctx context.Context, series *Series) {
	doc := mongoSeriesDoc{
		ID:        seriesKey(series.Symbol, series.Period),
		Symbol:    series.Symbol,
		Period:    series.Period,
		UpdatedAt: time.Now().UTC(),
		Candles:   series.Candles,
	}

	_, err := m.database.Collection(MongoSeriesCollection).ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		log.Printf("Failed to cache series for %s: %v", series.Symbol, err)
	}
}

// PurgeStale removes cached series older than the given age.
func (m *MongoCache) PurgeStale(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := m.database.Collection(MongoSeriesCollection).
		DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": cutoff}})
	return err
}

// Close disconnects the MongoDB client.
func (m *MongoCache) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func seriesKey(symbol, period string) string {
	return symbol + "|" + period
}
