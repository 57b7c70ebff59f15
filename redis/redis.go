package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"interoprelay/config"
	"interoprelay/types"
)

const keyPrefix = "interop"

// StatusSets maps every stored status to the redis SET indexing its records
var StatusSets = func() map[types.Status]string {
	sets := make(map[types.Status]string, len(types.StoredStatuses))
	for _, s := range types.StoredStatuses {
		sets[s] = fmt.Sprintf("%s:statusset:%s", keyPrefix, s)
	}
	return sets
}()

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

// StatusStore keeps relay status records in redis so several relayer
// instances can answer status queries
type StatusStore struct {
	pool   *redis.Pool
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func Init(cfg *config.Configuration, logger *zap.SugaredLogger) *StatusStore {
	redisAddr := fmt.Sprintf("%s:%d", cfg.Server.RedisHost, cfg.Server.RedisPort)
	pool := &redis.Pool{
		MaxIdle: 5,
		Dial:    func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
	}
	return NewStatusStore(pool, time.Duration(cfg.Server.StatusTTL)*time.Second, logger)
}

func NewStatusStore(pool *redis.Pool, ttl time.Duration, logger *zap.SugaredLogger) *StatusStore {
	return &StatusStore{
		pool:   pool,
		ttl:    ttl,
		logger: logger.Named("redis"),
	}
}

func recordKey(key types.StatusKey) string {
	return fmt.Sprintf("%s:status:%s", keyPrefix, strings.ToLower(key.String()))
}

// Ping checks that the server is reachable
func (s *StatusStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("PING")
	return err
}

func (s *StatusStore) Get(ctx context.Context, key types.StatusKey) (*types.RelayStatus, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return s.get(conn, recordKey(key))
}

func (s *StatusStore) get(conn redis.Conn, recordKey string) (*types.RelayStatus, error) {
	raw, err := redis.Bytes(conn.Do("GET", recordKey))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Errorf("error Redis GET: %s", err.Error())
		return nil, err
	}

	var rec types.RelayStatus
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal status record %s", recordKey)
	}
	return &rec, nil
}

// Set writes the record and moves its key between the status sets,
// a record is a member of exactly one set. Only terminal records get the ttl.
func (s *StatusStore) Set(ctx context.Context, rec *types.RelayStatus) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	set, ok := StatusSets[rec.Status]
	if !ok {
		return errors.Newf("status %q cannot be stored", rec.Status)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	key := recordKey(rec.Key())

	prev, err := s.get(conn, key)
	if err != nil {
		return err
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "cannot marshal status record to JSON")
	}

	if prev != nil && prev.Status != rec.Status {
		if _, err := conn.Do("SREM", StatusSets[prev.Status], key); err != nil {
			s.logger.Errorf("error Redis SREM: %s", err.Error())
			return err
		}
	}

	// running flows never expire, their record is needed until the flow ends
	args := redis.Args{}.Add(key, recJSON)
	if s.ttl > 0 && rec.Status.Terminal() {
		args = args.Add("EX", int64(s.ttl/time.Second))
	}
	if _, err := conn.Do("SET", args...); err != nil {
		s.logger.Errorf("error Redis SET: %s", err.Error())
		return err
	}

	if _, err := conn.Do("SADD", set, key); err != nil {
		s.logger.Errorf("error Redis SADD: %s", err.Error())
		return err
	}

	return nil
}

// ListByStatus scans the status set. Members whose record has expired are dropped from the set.
func (s *StatusStore) ListByStatus(ctx context.Context, status types.Status) ([]*types.RelayStatus, error) {
	set, ok := StatusSets[status]
	if !ok {
		return nil, errors.New("redis key not found for status")
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	recs := make([]*types.RelayStatus, 0)

	var cursor int64
	for {
		values, err := redis.Values(conn.Do("SSCAN", set, cursor))
		if err != nil {
			return nil, err
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}

		for _, key := range keys {
			rec, err := s.get(conn, key)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				if _, err := conn.Do("SREM", set, key); err != nil {
					s.logger.Errorf("error Redis SREM: %s", err.Error())
				}
				continue
			}
			if rec.Status == status {
				recs = append(recs, rec)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return recs, nil
}

func (s *StatusStore) Close() error {
	return s.pool.Close()
}
