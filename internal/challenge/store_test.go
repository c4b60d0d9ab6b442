package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, "agc"), mr
}

func saveRecord(t *testing.T, s *Store, id string, ttl time.Duration) *Record {
	t.Helper()

	now := time.Now()
	record := &Record{
		AccountID: "u1",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	if err := s.Save(context.Background(), id, record, ttl); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return record
}

func TestSaveGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	want := saveRecord(t, s, "c1", 3*time.Minute)

	got, err := s.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccountID != want.AccountID || got.ExpiresAt != want.ExpiresAt || got.Attempts != 0 {
		t.Fatalf("record mismatch: %+v vs %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredRecordIsDeleted(t *testing.T) {
	s, _ := newTestStore(t)

	// long redis TTL but an already-passed logical expiry
	record := &Record{
		AccountID: "u1",
		IssuedAt:  time.Now().Add(-4 * time.Minute).Unix(),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	if err := s.Save(context.Background(), "c1", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.Get(context.Background(), "c1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// and the key is gone afterwards
	if _, err := s.Get(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry cleanup, got %v", err)
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	s, mr := newTestStore(t)

	saveRecord(t, s, "c1", time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestDeleteIsSingleUse(t *testing.T) {
	s, _ := newTestStore(t)

	saveRecord(t, s, "c1", 3*time.Minute)

	deleted, err := s.Delete(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected first delete to report presence")
	}

	deleted, err = s.Delete(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report absence")
	}
}

func TestRecordFailureCountsAndDeletesAtCap(t *testing.T) {
	s, _ := newTestStore(t)

	saveRecord(t, s, "c1", 3*time.Minute)

	for i := 1; i < 5; i++ {
		exceeded, err := s.RecordFailure(context.Background(), "c1", 5)
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if exceeded {
			t.Fatalf("attempt %d must not exceed cap 5", i)
		}

		got, err := s.Get(context.Background(), "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if int(got.Attempts) != i {
			t.Fatalf("expected %d attempts, got %d", i, got.Attempts)
		}
	}

	exceeded, err := s.RecordFailure(context.Background(), "c1", 5)
	if err != nil {
		t.Fatalf("final RecordFailure failed: %v", err)
	}
	if !exceeded {
		t.Fatal("expected cap exceeded on fifth failure")
	}

	// exceeding the cap deletes the challenge
	if _, err := s.Get(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected challenge gone after cap, got %v", err)
	}
}

func TestRecordFailureOnMissingChallenge(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.RecordFailure(context.Background(), "nope", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCodecRejectsUnknownVersion(t *testing.T) {
	record := &Record{AccountID: "u1", IssuedAt: 1, ExpiresAt: 2, Attempts: 3}

	data, err := encodeRecord(record)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}

	decoded, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decodeRecord failed: %v", err)
	}
	if *decoded != *record {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, record)
	}

	data[0] = 99
	if _, err := decodeRecord(data); err == nil {
		t.Fatal("expected error for unknown record version")
	}

	if _, err := decodeRecord(data[:3]); err == nil {
		t.Fatal("expected error for truncated record")
	}
}
