package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/membership/internal/otp/domain"
)

const defaultRedisPrefix = "otp"

// redisRecord keeps the code hash, which the domain model never serializes.
type redisRecord struct {
	ID             snowflake.ID          `json:"id"`
	UserID         snowflake.ID          `json:"user_id"`
	Type           domain.Type           `json:"type"`
	DeliveryMethod domain.DeliveryMethod `json:"delivery_method"`
	Target         string                `json:"target"`
	CodeHash       string                `json:"code_hash"`
	Status         domain.Status         `json:"status"`
	Attempts       int                   `json:"attempts"`
	MaxAttempts    int                   `json:"max_attempts"`
	ExpiresAt      time.Time             `json:"expires_at"`
	VerifiedAt     *time.Time            `json:"verified_at,omitempty"`
	Metadata       map[string]any        `json:"metadata,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func toRedisRecord(rec *domain.Record) redisRecord {
	return redisRecord{
		ID:             rec.ID,
		UserID:         rec.UserID,
		Type:           rec.Type,
		DeliveryMethod: rec.DeliveryMethod,
		Target:         rec.Target,
		CodeHash:       rec.CodeHash,
		Status:         rec.Status,
		Attempts:       rec.Attempts,
		MaxAttempts:    rec.MaxAttempts,
		ExpiresAt:      rec.ExpiresAt,
		VerifiedAt:     rec.VerifiedAt,
		Metadata:       rec.Metadata,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func (r redisRecord) toDomain() *domain.Record {
	return &domain.Record{
		ID:             r.ID,
		UserID:         r.UserID,
		Type:           r.Type,
		DeliveryMethod: r.DeliveryMethod,
		Target:         r.Target,
		CodeHash:       r.CodeHash,
		Status:         r.Status,
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		ExpiresAt:      r.ExpiresAt,
		VerifiedAt:     r.VerifiedAt,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// RedisStore keeps OTP records as JSON values that expire after the retention
// window, indexed per user and globally by creation time.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention, prefix: defaultRedisPrefix}
}

func (s *RedisStore) recordKey(id snowflake.ID) string {
	return fmt.Sprintf("%s:record:%d", s.prefix, id.Int64())
}

func (s *RedisStore) userIndexKey(userID snowflake.ID) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID.Int64())
}

func (s *RedisStore) createdIndexKey() string { return s.prefix + ":created" }

func createdMember(userID, id snowflake.ID) string {
	return userID.String() + ":" + id.String()
}

func (s *RedisStore) Insert(ctx context.Context, rec *domain.Record) error {
	data, err := json.Marshal(toRedisRecord(rec))
	if err != nil {
		return err
	}
	score := float64(rec.CreatedAt.UnixNano())

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), data, s.retention)
		pipe.ZAdd(ctx, s.userIndexKey(rec.UserID), redis.Z{Score: score, Member: rec.ID.String()})
		pipe.Expire(ctx, s.userIndexKey(rec.UserID), s.retention)
		pipe.ZAdd(ctx, s.createdIndexKey(), redis.Z{Score: score, Member: createdMember(rec.UserID, rec.ID)})
		return nil
	})
	return err
}

func (s *RedisStore) load(ctx context.Context, id snowflake.ID) (*domain.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// scanUser walks a user's records newest first and stops when fn returns false.
func (s *RedisStore) scanUser(ctx context.Context, userID snowflake.ID, min string, fn func(*domain.Record) bool) error {
	ids, err := s.client.ZRevRangeByScore(ctx, s.userIndexKey(userID), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range ids {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			continue
		}
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			if err := s.client.ZRem(ctx, s.userIndexKey(userID), raw).Err(); err != nil {
				return fmt.Errorf("drop expired otp index entry: %w", err)
			}
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func (s *RedisStore) LatestPending(ctx context.Context, userID snowflake.ID, otpType *domain.Type) (*domain.Record, error) {
	var found *domain.Record
	err := s.scanUser(ctx, userID, "-inf", func(rec *domain.Record) bool {
		if rec.Status != domain.StatusPending || (otpType != nil && rec.Type != *otpType) {
			return true
		}
		found = rec
		return false
	})
	return found, err
}

func (s *RedisStore) Latest(ctx context.Context, userID snowflake.ID, otpType *domain.Type) (*domain.Record, error) {
	var found *domain.Record
	err := s.scanUser(ctx, userID, "-inf", func(rec *domain.Record) bool {
		if otpType != nil && rec.Type != *otpType {
			return true
		}
		found = rec
		return false
	})
	return found, err
}

func (s *RedisStore) Update(ctx context.Context, rec *domain.Record) error {
	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	current.Status = rec.Status
	current.Attempts = rec.Attempts
	current.VerifiedAt = rec.VerifiedAt
	current.UpdatedAt = rec.UpdatedAt

	data, err := json.Marshal(toRedisRecord(current))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.recordKey(rec.ID), data, redis.KeepTTL).Err()
}

func (s *RedisStore) InvalidatePending(ctx context.Context, userID snowflake.ID, otpType domain.Type, excludeID snowflake.ID, now time.Time) (int64, error) {
	var stale []*domain.Record
	err := s.scanUser(ctx, userID, "-inf", func(rec *domain.Record) bool {
		if rec.Type == otpType && rec.Status == domain.StatusPending && rec.ID != excludeID {
			stale = append(stale, rec)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	for _, rec := range stale {
		rec.Status = domain.StatusExpired
		rec.UpdatedAt = now
		if err := s.Update(ctx, rec); err != nil {
			return 0, err
		}
	}
	return int64(len(stale)), nil
}

func (s *RedisStore) CountCreatedSince(ctx context.Context, userID snowflake.ID, method domain.DeliveryMethod, since time.Time) (int64, error) {
	var count int64
	min := strconv.FormatInt(since.UnixNano(), 10)
	err := s.scanUser(ctx, userID, min, func(rec *domain.Record) bool {
		if rec.DeliveryMethod == method {
			count++
		}
		return true
	})
	return count, err
}

func (s *RedisStore) Delete(ctx context.Context, id snowflake.ID) error {
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.userIndexKey(rec.UserID), id.String())
		pipe.ZRem(ctx, s.createdIndexKey(), createdMember(rec.UserID, id))
		return nil
	})
	return err
}

func (s *RedisStore) DeleteCreatedBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	members, err := s.client.ZRangeByScore(ctx, s.createdIndexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UnixNano(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, member := range members {
		userRaw, idRaw, ok := strings.Cut(member, ":")
		if !ok {
			if err := s.client.ZRem(ctx, s.createdIndexKey(), member).Err(); err != nil {
				return deleted, fmt.Errorf("drop malformed otp index entry: %w", err)
			}
			continue
		}
		id, err := snowflake.ParseString(idRaw)
		if err != nil {
			continue
		}
		userID, err := snowflake.ParseString(userRaw)
		if err != nil {
			continue
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.recordKey(id))
			pipe.ZRem(ctx, s.userIndexKey(userID), idRaw)
			pipe.ZRem(ctx, s.createdIndexKey(), member)
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

var _ domain.Repository = (*RedisStore)(nil)
