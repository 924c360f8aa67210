package shares

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"droplink-backend/internal/links"
	"droplink-backend/internal/shared/password"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	deletes    []string
	failPut    bool
	failDelete bool
	putDelay   time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if f.failPut {
		return 0, errors.New("blob store down")
	}
	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return int64(len(data)), nil
}

func (f *fakeStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; !ok {
		return nil, errors.New("no such blob")
	}
	return io.NopCloser(nil), nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.failDelete {
		return errors.New("delete failed")
	}
	delete(f.blobs, key)
	return nil
}

func (f *fakeStore) blobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

type fakeIssuer struct {
	mu      sync.Mutex
	issued  int
	lastTTL time.Duration
	fail    bool
}

func (f *fakeIssuer) Issue(ctx context.Context, shareID, blobKey, fileName string, ttl time.Duration) (links.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return links.Handle{}, errors.New("issuer down")
	}
	f.issued++
	f.lastTTL = ttl
	return links.Handle{
		URL:       "http://example.test/api/v1/retrieve/tok-" + shareID,
		ExpiresAt: testNow.Add(ttl),
	}, nil
}

// conflictRepo fails the first n Create calls with ErrConflict.
type conflictRepo struct {
	Repo
	mu        sync.Mutex
	conflicts int
}

func (r *conflictRepo) Create(ctx context.Context, share Share) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return ErrConflict
	}
	r.mu.Unlock()
	return r.Repo.Create(ctx, share)
}

// brokenRepo fails every Create.
type brokenRepo struct {
	Repo
}

func (r *brokenRepo) Create(ctx context.Context, share Share) error {
	return errors.New("registry down")
}

// auditFailRepo fails RecordAccess only.
type auditFailRepo struct {
	Repo
}

func (r *auditFailRepo) RecordAccess(ctx context.Context, id string, at time.Time) error {
	return errors.New("counter down")
}

func newTestService(repo Repo, store *fakeStore, issuer *fakeIssuer) *Service {
	return &Service{
		Store:   store,
		Repo:    repo,
		Guard:   password.NewGuard(),
		Issuer:  issuer,
		LinkTTL: time.Hour,
		Now:     func() time.Time { return testNow },
	}
}

func TestCreateStoresBlobAndRecord(t *testing.T) {
	repo := NewMemoryRepo()
	store := newFakeStore()
	svc := newTestService(repo, store, &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName:   "hello.txt",
		Password:   "secret123",
		ExpirySpec: "1d",
		Data:       []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if share.ID == "" {
		t.Fatalf("expected generated id")
	}
	if share.OriginalName != "hello.txt" {
		t.Fatalf("OriginalName = %q", share.OriginalName)
	}
	if share.SizeBytes != 5 {
		t.Fatalf("SizeBytes = %d, want 5", share.SizeBytes)
	}
	if share.BlobKey != "shares/"+share.ID {
		t.Fatalf("BlobKey = %q, want derived from id", share.BlobKey)
	}
	if share.PasswordHash == "" || share.PasswordHash == "secret123" {
		t.Fatalf("password must be stored hashed, got %q", share.PasswordHash)
	}
	if want := testNow.Add(24 * time.Hour); !share.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", share.ExpiresAt, want)
	}
	if share.DownloadCount != 0 {
		t.Fatalf("DownloadCount = %d, want 0", share.DownloadCount)
	}

	if store.blobCount() != 1 {
		t.Fatalf("expected exactly one blob, got %d", store.blobCount())
	}
	stored, err := repo.GetByID(context.Background(), share.ID)
	if err != nil {
		t.Fatalf("GetByID after create: %v", err)
	}
	if stored.BlobKey != share.BlobKey {
		t.Fatalf("stored BlobKey = %q", stored.BlobKey)
	}
}

func TestCreatePublicShareHasNoHash(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName:   "open.txt",
		ExpirySpec: "7d",
		Data:       []byte("data"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if share.PasswordRequired() {
		t.Fatalf("public share must not require a password")
	}
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore()
	repo := NewMemoryRepo()
	svc := newTestService(repo, store, &fakeIssuer{})

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"empty file", CreateInput{FileName: "a.txt", ExpirySpec: "1d"}},
		{"empty name", CreateInput{FileName: "  ", ExpirySpec: "1d", Data: []byte("x")}},
		{"past expiry", CreateInput{FileName: "a.txt", ExpirySpec: "2026-01-01T00:00:00Z", Data: []byte("x")}},
		{"bad token", CreateInput{FileName: "a.txt", ExpirySpec: "2w", Data: []byte("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Create = %v, want ErrInvalidInput", err)
			}
		})
	}

	if store.blobCount() != 0 {
		t.Fatalf("validation failures must not write blobs, got %d", store.blobCount())
	}
}

func TestCreateCompensatesOnRegistryFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&brokenRepo{NewMemoryRepo()}, store, &fakeIssuer{})

	_, err := svc.Create(context.Background(), CreateInput{
		FileName:   "doomed.txt",
		ExpirySpec: "1d",
		Data:       []byte("payload"),
	})
	if err == nil {
		t.Fatalf("expected error when registry fails")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatalf("registry failure must be internal, got %v", err)
	}
	if store.blobCount() != 0 {
		t.Fatalf("orphaned blob left behind after failed metadata write")
	}
	if len(store.deletes) != 1 {
		t.Fatalf("expected exactly one compensating delete, got %d", len(store.deletes))
	}
}

func TestCreateBlobStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failPut = true
	repo := NewMemoryRepo()
	svc := newTestService(repo, store, &fakeIssuer{})

	_, err := svc.Create(context.Background(), CreateInput{
		FileName:   "a.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected error when blob store is down")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatalf("store failure must be internal, got %v", err)
	}
}

func TestCreateSurfacesErrorWhenCleanupAlsoFails(t *testing.T) {
	store := newFakeStore()
	store.failDelete = true
	svc := newTestService(&brokenRepo{NewMemoryRepo()}, store, &fakeIssuer{})

	_, err := svc.Create(context.Background(), CreateInput{
		FileName:   "a.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected the original persistence error")
	}
	// the orphaned blob is logged and counted, not silently dropped
	if len(store.deletes) != 1 {
		t.Fatalf("expected one attempted delete, got %d", len(store.deletes))
	}
}

func TestCreateRetriesOnIDConflict(t *testing.T) {
	store := newFakeStore()
	repo := &conflictRepo{Repo: NewMemoryRepo(), conflicts: 2}
	svc := newTestService(repo, store, &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName:   "retry.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create after conflicts: %v", err)
	}
	// blobs from the conflicting attempts were cleaned up
	if store.blobCount() != 1 {
		t.Fatalf("expected one surviving blob, got %d", store.blobCount())
	}
	if len(store.deletes) != 2 {
		t.Fatalf("expected two compensating deletes, got %d", len(store.deletes))
	}
	if share.BlobKey != "shares/"+share.ID {
		t.Fatalf("surviving blob key must match final id")
	}
}

// wrappingConflictRepo wraps the sentinel the way a driver-level repo might.
type wrappingConflictRepo struct {
	Repo
	mu        sync.Mutex
	conflicts int
}

func (r *wrappingConflictRepo) Create(ctx context.Context, share Share) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return fmt.Errorf("insert share: %w", ErrConflict)
	}
	r.mu.Unlock()
	return r.Repo.Create(ctx, share)
}

func TestCreateRetriesOnWrappedConflict(t *testing.T) {
	store := newFakeStore()
	repo := &wrappingConflictRepo{Repo: NewMemoryRepo(), conflicts: 1}
	svc := newTestService(repo, store, &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName:   "wrapped.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create after wrapped conflict: %v", err)
	}
	if store.blobCount() != 1 {
		t.Fatalf("expected one surviving blob, got %d", store.blobCount())
	}
	if _, err := svc.Repo.GetByID(context.Background(), share.ID); err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
}

func TestCreateSurvivesClientDisconnect(t *testing.T) {
	repo := NewMemoryRepo()
	store := newFakeStore()
	svc := newTestService(repo, store, &fakeIssuer{})

	// caller context already canceled, as after a dropped connection
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	share, err := svc.Create(ctx, CreateInput{
		FileName:   "dropped.txt",
		ExpirySpec: "1d",
		Data:       []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Create with canceled caller: %v", err)
	}

	if store.blobCount() != 1 {
		t.Fatalf("expected the blob to be written, got %d", store.blobCount())
	}
	if _, err := repo.GetByID(context.Background(), share.ID); err != nil {
		t.Fatalf("record missing after canceled-caller create: %v", err)
	}
}

func TestCreateSlowStoreHitsOpTimeout(t *testing.T) {
	store := newFakeStore()
	store.putDelay = 200 * time.Millisecond
	repo := NewMemoryRepo()
	svc := newTestService(repo, store, &fakeIssuer{})
	svc.OpTimeout = 50 * time.Millisecond

	_, err := svc.Create(context.Background(), CreateInput{
		FileName:   "slow.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected timeout error from slow store")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatalf("timeout must be internal, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
	if store.blobCount() != 0 {
		t.Fatalf("timed-out attempt left %d blobs behind", store.blobCount())
	}
}

func TestCreateGivesUpAfterBoundedConflicts(t *testing.T) {
	store := newFakeStore()
	repo := &conflictRepo{Repo: NewMemoryRepo(), conflicts: 100}
	svc := newTestService(repo, store, &fakeIssuer{})

	_, err := svc.Create(context.Background(), CreateInput{
		FileName:   "never.txt",
		ExpirySpec: "1d",
		Data:       []byte("x"),
	})
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if store.blobCount() != 0 {
		t.Fatalf("all attempt blobs must be cleaned up, %d left", store.blobCount())
	}
}

func TestStatusDoesNotMutateCount(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "s.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 5; i++ {
		got, expired, err := svc.Status(context.Background(), share.ID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if expired {
			t.Fatalf("fresh share reported expired")
		}
		if got.OriginalName != "s.txt" || got.SizeBytes != 1 {
			t.Fatalf("unexpected status payload: %+v", got)
		}
	}

	stored, _ := repo.GetByID(context.Background(), share.ID)
	if stored.DownloadCount != 0 {
		t.Fatalf("status polls mutated DownloadCount to %d", stored.DownloadCount)
	}
}

func TestStatusReportsExpiredNotMissing(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "old.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.Now = func() time.Time { return testNow.Add(48 * time.Hour) }

	_, expired, err := svc.Status(context.Background(), share.ID)
	if err != nil {
		t.Fatalf("Status of expired share: %v", err)
	}
	if !expired {
		t.Fatalf("expected isExpired = true after 2 days")
	}
}

func TestUnlockWithPassword(t *testing.T) {
	repo := NewMemoryRepo()
	issuer := &fakeIssuer{}
	svc := newTestService(repo, newFakeStore(), issuer)

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "hello.txt", Password: "secret123", ExpirySpec: "1d", Data: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Unlock(context.Background(), share.ID, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Unlock(context.Background(), share.ID, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing password: %v, want ErrUnauthorized", err)
	}

	grant, err := svc.Unlock(context.Background(), share.ID, "secret123")
	if err != nil {
		t.Fatalf("correct password: %v", err)
	}
	if grant.Handle.URL == "" {
		t.Fatalf("expected a retrieval handle")
	}
	if grant.Share.OriginalName != "hello.txt" || grant.Share.SizeBytes != 5 {
		t.Fatalf("unexpected grant payload: %+v", grant.Share)
	}

	stored, _ := repo.GetByID(context.Background(), share.ID)
	if stored.DownloadCount != 1 {
		t.Fatalf("DownloadCount = %d, want 1", stored.DownloadCount)
	}
	if stored.LastAccessedAt == nil || !stored.LastAccessedAt.Equal(testNow) {
		t.Fatalf("LastAccessedAt = %v, want %v", stored.LastAccessedAt, testNow)
	}
}

func TestUnlockPublicShare(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "open.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// no password step for public shares; a stray password is ignored
	if _, err := svc.Unlock(context.Background(), share.ID, ""); err != nil {
		t.Fatalf("Unlock without password: %v", err)
	}
	if _, err := svc.Unlock(context.Background(), share.ID, "anything"); err != nil {
		t.Fatalf("Unlock with stray password: %v", err)
	}
}

func TestUnlockExpiredEvenWithCorrectPassword(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "hello.txt", Password: "secret123", ExpirySpec: "1d", Data: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.Now = func() time.Time { return testNow.Add(48 * time.Hour) }

	if _, err := svc.Unlock(context.Background(), share.ID, "secret123"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired unlock = %v, want ErrExpired", err)
	}
}

func TestUnlockUnknownID(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), newFakeStore(), &fakeIssuer{})
	if _, err := svc.Unlock(context.Background(), "no-such-id", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id = %v, want ErrNotFound", err)
	}
}

func TestUnlockHandleTTLClampedToShareExpiry(t *testing.T) {
	issuer := &fakeIssuer{}
	svc := newTestService(NewMemoryRepo(), newFakeStore(), issuer)

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "soon.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 30 minutes before expiry the 1h handle window must shrink
	svc.Now = func() time.Time { return share.ExpiresAt.Add(-30 * time.Minute) }

	if _, err := svc.Unlock(context.Background(), share.ID, ""); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if issuer.lastTTL != 30*time.Minute {
		t.Fatalf("handle TTL = %v, want 30m", issuer.lastTTL)
	}
}

func TestUnlockSucceedsWhenAuditFails(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(&auditFailRepo{repo}, newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "best.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	grant, err := svc.Unlock(context.Background(), share.ID, "")
	if err != nil {
		t.Fatalf("Unlock must not fail on audit error: %v", err)
	}
	if grant.Handle.URL == "" {
		t.Fatalf("expected a handle despite audit failure")
	}
}

func TestUnlockIssuerFailureIsInternal(t *testing.T) {
	repo := NewMemoryRepo()
	issuer := &fakeIssuer{fail: true}
	svc := newTestService(repo, newFakeStore(), issuer)

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "x.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Unlock(context.Background(), share.ID, "")
	if err == nil {
		t.Fatalf("expected error when issuer fails")
	}

	// the failed grant never counted as an access
	stored, _ := repo.GetByID(context.Background(), share.ID)
	if stored.DownloadCount != 0 {
		t.Fatalf("DownloadCount = %d, want 0", stored.DownloadCount)
	}
}

func TestConcurrentUnlocksCountExactly(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, newFakeStore(), &fakeIssuer{})

	share, err := svc.Create(context.Background(), CreateInput{
		FileName: "busy.txt", ExpirySpec: "1d", Data: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Unlock(context.Background(), share.ID, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Unlock: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), share.ID)
	if stored.DownloadCount != n {
		t.Fatalf("DownloadCount = %d, want %d (lost updates)", stored.DownloadCount, n)
	}
}
