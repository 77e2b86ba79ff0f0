package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"

	"korob/internal/engine"
	"korob/internal/meta"
)

const BackendRedis = "redis"

// Redis — документный адаптер: запись хранится JSON-документом под своим
// ключом, живые id лежат в ZSET со score = created_at, поэтому листинг
// "новые первыми" — это ZREVRANGE со skip/take. Индекс ведётся на пару
// (коллекция, сущность): у коллекции может оказаться несколько сущностей,
// а выдача и счётчики всегда отфильтрованы по entity_id. Soft delete
// помечает документ и убирает id из индекса.
type Redis struct {
	rdb     *goredis.Client
	entropy io.Reader
}

func NewRedis(rdb *goredis.Client) *Redis {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Redis{rdb: rdb, entropy: ulid.Monotonic(src, 0)}
}

// NewRedisClient — клиент с таймаутом подключения и проверочным ping.
func NewRedisClient(addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (r *Redis) BackendName() string { return BackendRedis }

func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *Redis) wrap(err error) error {
	return &engine.StorageError{Backend: BackendRedis, Err: err}
}

func (r *Redis) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

func docKey(collection, id string) string { return "korob:rec:" + collection + ":" + id }

func indexKey(collection, entityID string) string {
	return "korob:ix:" + collection + ":" + entityID
}

// redisDoc — то, что реально лежит под ключом: Record плюс явный флаг
// deleted (в JSON записи он наружу не сериализуется).
type redisDoc struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Deleted   bool           `json:"deleted"`
}

func (d *redisDoc) record() *meta.Record {
	return &meta.Record{
		ID:        d.ID,
		EntityID:  d.EntityID,
		Data:      d.Data,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Deleted:   d.Deleted,
	}
}

func (r *Redis) getDoc(ctx context.Context, d engine.Descriptor) (*redisDoc, error) {
	raw, err := r.rdb.Get(ctx, docKey(d.Collection, d.RecordID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, engine.ErrRecordNotFound
	}
	if err != nil {
		return nil, r.wrap(err)
	}
	var doc redisDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, r.wrap(err)
	}
	if doc.Deleted || doc.EntityID != d.EntityID {
		return nil, engine.ErrRecordNotFound
	}
	return &doc, nil
}

func (r *Redis) putDoc(ctx context.Context, collection string, doc *redisDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return r.wrap(err)
	}
	if err := r.rdb.Set(ctx, docKey(collection, doc.ID), raw, 0).Err(); err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *Redis) Create(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	now := time.Now().UTC()
	doc := &redisDoc{
		ID:        r.newID(),
		EntityID:  d.EntityID,
		Data:      d.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, r.wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, docKey(d.Collection, doc.ID), raw, 0)
	pipe.ZAdd(ctx, indexKey(d.Collection, d.EntityID), goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: doc.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, r.wrap(err)
	}
	return doc.record(), nil
}

func (r *Redis) FindMany(ctx context.Context, d engine.Descriptor) ([]*meta.Record, error) {
	start := int64(d.Skip)
	stop := int64(d.Skip+d.Take) - 1
	ids, err := r.rdb.ZRevRange(ctx, indexKey(d.Collection, d.EntityID), start, stop).Result()
	if err != nil {
		return nil, r.wrap(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(d.Collection, id)
	}
	raws, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, r.wrap(err)
	}

	out := make([]*meta.Record, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue // документ исчез между ZREVRANGE и MGET
		}
		var doc redisDoc
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, r.wrap(err)
		}
		if doc.Deleted || doc.EntityID != d.EntityID {
			continue
		}
		out = append(out, doc.record())
	}
	return out, nil
}

func (r *Redis) FindOne(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	doc, err := r.getDoc(ctx, d)
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (r *Redis) Count(ctx context.Context, d engine.Descriptor) (int64, error) {
	n, err := r.rdb.ZCard(ctx, indexKey(d.Collection, d.EntityID)).Result()
	if err != nil {
		return 0, r.wrap(err)
	}
	return n, nil
}

func (r *Redis) Update(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	doc, err := r.getDoc(ctx, d)
	if err != nil {
		return nil, err
	}
	doc.Data = d.Payload
	doc.UpdatedAt = time.Now().UTC()
	if err := r.putDoc(ctx, d.Collection, doc); err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (r *Redis) SoftDelete(ctx context.Context, d engine.Descriptor) error {
	doc, err := r.getDoc(ctx, d)
	if err != nil {
		return err
	}
	doc.Deleted = true
	doc.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(doc)
	if err != nil {
		return r.wrap(err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, docKey(d.Collection, doc.ID), raw, 0)
	pipe.ZRem(ctx, indexKey(d.Collection, d.EntityID), doc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *Redis) HardDelete(ctx context.Context, d engine.Descriptor) error {
	pipe := r.rdb.TxPipeline()
	del := pipe.Del(ctx, docKey(d.Collection, d.RecordID))
	pipe.ZRem(ctx, indexKey(d.Collection, d.EntityID), d.RecordID)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.wrap(err)
	}
	if del.Val() == 0 {
		return engine.ErrRecordNotFound
	}
	return nil
}
