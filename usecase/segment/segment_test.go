package segment

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
	redisRepo "github.com/fastygo/segments/repository/redis"
	"github.com/fastygo/segments/repository/sqlite"
	"github.com/fastygo/segments/usecase/event"
	"github.com/fastygo/segments/usecase/revision"
)

const (
	adminID int64 = 7
	userID  int64 = 8
)

var (
	admin = domain.Caller{UserID: adminID, Role: domain.RoleAdmin}
	user  = domain.Caller{UserID: userID, Role: domain.RoleUser}
)

type fixture struct {
	uc        *UseCase
	revisions repository.RevisionRepository
	events    *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Observe(_ context.Context, evt domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) names() []domain.EventName {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventName, 0, len(l.events))
	for _, evt := range l.events {
		out = append(out, evt.Name)
	}
	return out
}

func (l *eventLog) last() domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newFixture(t *testing.T, opts Options, cache repository.SegmentCache) *fixture {
	t.Helper()
	return newFixtureWith(t, opts, cache, nil)
}

// newFixtureWith lets a test wrap the segment repository.
func newFixtureWith(t *testing.T, opts Options, cache repository.SegmentCache, wrap func(repository.SegmentRepository) repository.SegmentRepository) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "segments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	ctx := context.Background()
	require.NoError(t, users.Upsert(ctx, &domain.User{ID: adminID, Email: "admin@example.com", Role: domain.RoleAdmin}))
	require.NoError(t, users.Upsert(ctx, &domain.User{ID: userID, Email: "user@example.com", Role: domain.RoleUser}))

	revisions := sqlite.NewRevisionRepository(db)
	log := &eventLog{}
	publisher := event.NewPublisher(nil)
	publisher.SubscribeAll("test", log)

	var segments repository.SegmentRepository = sqlite.NewSegmentRepository(db)
	if wrap != nil {
		segments = wrap(segments)
	}

	uc := New(Deps{
		Segments:   segments,
		Users:      users,
		Transactor: sqlite.NewTransactor(db),
		Recorder:   revision.New(revisions, nil),
		Events:     publisher,
		Cache:      cache,
	}, opts, nil)

	return &fixture{uc: uc, revisions: revisions, events: log}
}

func activeUsers() domain.NewSegment {
	return domain.NewSegment{
		TableID:    1,
		CreatorID:  adminID,
		Name:       "Active Users",
		Definition: domain.Definition{"field": "status", "op": "=", "value": "active"},
	}
}

func (f *fixture) revisionCount(t *testing.T, id int64) int {
	t.Helper()
	list, err := f.revisions.ListByModel(context.Background(), domain.RevisionModelSegment, id)
	require.NoError(t, err)
	return len(list)
}

func TestCreateThenRetrieve(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)
	require.Positive(t, created.ID)
	assert.True(t, created.IsActive)

	creator, err := created.Creator(ctx)
	require.NoError(t, err)
	assert.Equal(t, adminID, creator.ID)

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TableID)
	assert.Equal(t, "Active Users", got.Name)
	assert.Equal(t, adminID, got.CreatorID)
	assert.Equal(t, created.Definition, got.Definition)
	assert.True(t, got.IsActive)

	assert.Equal(t, []domain.EventName{domain.EventSegmentCreate}, f.events.names())
	assert.Equal(t, 1, f.revisionCount(t, created.ID))

	history, err := f.uc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Revision.IsCreation)
	assert.Equal(t, []string{"created this segment"}, history[0].Changes)
	assert.Equal(t, adminID, history[0].Revision.UserID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	bad := activeUsers()
	bad.Definition = nil
	_, err := f.uc.Create(ctx, admin, bad)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	bad = activeUsers()
	bad.Name = " "
	_, err = f.uc.Create(ctx, admin, bad)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	bad = activeUsers()
	bad.CreatorID = 404
	_, err = f.uc.Create(ctx, admin, bad)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	assert.Empty(t, f.events.names())
}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	_, err := f.uc.Create(context.Background(), user, activeUsers())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, f.events.names())

	list, err := f.uc.RetrieveForTable(context.Background(), 1, domain.SegmentStateAll)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteArchives(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	archived, err := f.uc.Delete(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.False(t, archived.IsActive)

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	exists, err := f.uc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	active, err := f.uc.RetrieveForTable(ctx, 1, domain.SegmentStateActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.uc.RetrieveForTable(ctx, 1, domain.SegmentStateAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)

	deleted, err := f.uc.RetrieveForTable(ctx, 1, domain.SegmentStateDeleted)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	assert.Equal(t, []domain.EventName{domain.EventSegmentCreate, domain.EventSegmentDelete}, f.events.names())
	assert.Equal(t, 2, f.revisionCount(t, created.ID))

	_, err = f.uc.Delete(ctx, admin, created.ID)
	assert.ErrorIs(t, err, domain.ErrSegmentArchived)
}

func TestPurgeNotPermittedByDefault(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)
	_, err = f.uc.Delete(ctx, admin, created.ID)
	require.NoError(t, err)

	err = f.uc.Purge(ctx, admin, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOperationNotPermitted)

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err, "a refused purge must not fall back to anything")
	assert.False(t, got.IsActive)
	assert.Equal(t, 2, f.revisionCount(t, created.ID))
}

func TestPurgeWhenAllowed(t *testing.T) {
	f := newFixture(t, Options{AllowPurge: true}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	assert.ErrorIs(t, f.uc.Purge(ctx, user, created.ID), domain.ErrPermissionDenied)

	require.NoError(t, f.uc.Purge(ctx, admin, created.ID))
	_, err = f.uc.Retrieve(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)
	assert.Equal(t, 0, f.revisionCount(t, created.ID))
	assert.Equal(t, []domain.EventName{domain.EventSegmentCreate}, f.events.names(), "purge publishes nothing")

	assert.ErrorIs(t, f.uc.Purge(ctx, admin, created.ID), domain.ErrSegmentNotFound)
}

func TestUpdateRecordsOneRevision(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	updated, err := f.uc.Update(ctx, admin, created.ID, domain.SegmentChanges{
		Name:            "Active Users v2",
		Definition:      domain.Definition{"field": "status", "op": "=", "value": "active", "since": "7d"},
		RevisionMessage: "narrowed criteria",
	})
	require.NoError(t, err)
	assert.Equal(t, "Active Users v2", updated.Name)
	assert.Equal(t, "7d", updated.Definition["since"])

	history, err := f.uc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	latest := history[0]
	require.NotNil(t, latest.Revision.Message)
	assert.Equal(t, "narrowed criteria", *latest.Revision.Message)
	assert.False(t, latest.Revision.IsCreation)

	var definitionLine string
	for _, change := range latest.Changes {
		if strings.HasPrefix(change, "changed definition") {
			definitionLine = change
		}
	}
	assert.NotEmpty(t, definitionLine)
	assert.Contains(t, latest.Changes, `changed name from "Active Users" to "Active Users v2"`)

	evt := f.events.last()
	assert.Equal(t, domain.EventSegmentUpdate, evt.Name)
	assert.Equal(t, adminID, evt.ActorID)
	require.NotNil(t, evt.RevisionMessage)
	assert.Equal(t, "narrowed criteria", *evt.RevisionMessage)
}

func TestUpdateTwiceIsIdempotentInState(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	desc := "only active"
	changes := domain.SegmentChanges{
		Name:            "Active",
		Description:     &desc,
		Definition:      domain.Definition{"field": "status", "value": "active"},
		RevisionMessage: "tidy",
	}
	first, err := f.uc.Update(ctx, admin, created.ID, changes)
	require.NoError(t, err)
	second, err := f.uc.Update(ctx, admin, created.ID, changes)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Description, second.Description)
	assert.Equal(t, first.Definition, second.Definition)
	assert.Equal(t, 3, f.revisionCount(t, created.ID))

	history, err := f.uc.History(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, history[0].Changes)
}

func TestUpdateDeniedLeavesNoTrace(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	_, err = f.uc.Update(ctx, user, created.ID, domain.SegmentChanges{
		Name:            "Hijacked",
		Definition:      domain.Definition{"a": 1.0},
		RevisionMessage: "mine now",
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Active Users", got.Name)
	assert.Equal(t, 1, f.revisionCount(t, created.ID))
	assert.Equal(t, []domain.EventName{domain.EventSegmentCreate}, f.events.names())
}

func TestUpdateValidationAndMissing(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	_, err := f.uc.Update(ctx, admin, 999, domain.SegmentChanges{
		Name:            "x",
		Definition:      domain.Definition{"a": 1.0},
		RevisionMessage: "m",
	})
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)
	_, err = f.uc.Update(ctx, admin, created.ID, domain.SegmentChanges{
		Name:       "x",
		Definition: domain.Definition{"a": 1.0},
	})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Equal(t, 1, f.revisionCount(t, created.ID))
}

func TestRevert(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)
	_, err = f.uc.Update(ctx, admin, created.ID, domain.SegmentChanges{
		Name:            "Changed",
		Definition:      domain.Definition{"a": 1.0},
		RevisionMessage: "change",
	})
	require.NoError(t, err)

	history, err := f.uc.History(ctx, created.ID)
	require.NoError(t, err)
	creation := history[len(history)-1].Revision

	reverted, err := f.uc.Revert(ctx, admin, created.ID, creation.ID)
	require.NoError(t, err)
	assert.Equal(t, "Active Users", reverted.Name)
	assert.Equal(t, created.Definition, reverted.Definition)

	history, err = f.uc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Revision.IsReversion)
	assert.Equal(t, domain.EventSegmentUpdate, f.events.last().Name)

	_, err = f.uc.Revert(ctx, user, created.ID, creation.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	other, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)
	_, err = f.uc.Revert(ctx, admin, other.ID, creation.ID)
	assert.ErrorIs(t, err, domain.ErrRevisionNotFound)
}

func TestRetrieveMissing(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	_, err := f.uc.Retrieve(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)
	_, err = f.uc.Retrieve(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)

	exists, err := f.uc.Exists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.uc.RetrieveForTable(ctx, 0, domain.SegmentStateActive)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	_, err = f.uc.RetrieveForTable(ctx, 1, domain.SegmentState("gone"))
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, repository.SegmentCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, redisRepo.NewSegmentCache(client, 0)
}

func TestRetrieveUsesCacheAndWritesInvalidateIt(t *testing.T) {
	mr, cache := newTestCache(t)
	f := newFixture(t, Options{}, cache)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	_, err = f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("segment:"+itoa(created.ID)))

	cached, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	creator, err := cached.Creator(ctx)
	require.NoError(t, err)
	assert.Equal(t, adminID, creator.ID)

	_, err = f.uc.Delete(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("segment:"+itoa(created.ID)))

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestObserverFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.uc.Events().Subscribe(domain.EventSegmentCreate, "broken", event.ObserverFunc(func(context.Context, domain.Event) error {
		panic("observer down")
	}))
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	exists, err := f.uc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

// pausingSegments holds the first armed GetByID after the row is read until
// release is closed.
type pausingSegments struct {
	repository.SegmentRepository
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingSegments) GetByID(ctx context.Context, id int64) (*domain.Segment, error) {
	segment, err := p.SegmentRepository.GetByID(ctx, id)
	if p.armed.CompareAndSwap(true, false) {
		close(p.loaded)
		<-p.release
	}
	return segment, err
}

func TestRetrieveRacingDeleteDoesNotCacheStaleRow(t *testing.T) {
	mr, cache := newTestCache(t)
	paused := &pausingSegments{loaded: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, Options{}, cache, func(r repository.SegmentRepository) repository.SegmentRepository {
		paused.SegmentRepository = r
		return paused
	})
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	paused.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Retrieve(ctx, created.ID)
		done <- err
	}()

	<-paused.loaded
	_, err = f.uc.Delete(ctx, admin, created.ID)
	require.NoError(t, err)
	close(paused.release)
	require.NoError(t, <-done)

	assert.False(t, mr.Exists("segment:"+itoa(created.ID)))

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	exists, err := f.uc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConcurrentDeletesCommitOnce(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	created, err := f.uc.Create(ctx, admin, activeUsers())
	require.NoError(t, err)

	const callers = 4
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.uc.Delete(ctx, admin, created.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSegmentArchived)
		assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	}
	assert.Equal(t, 1, succeeded)

	assert.Equal(t, 2, f.revisionCount(t, created.ID))
	assert.Equal(t, []domain.EventName{domain.EventSegmentCreate, domain.EventSegmentDelete}, f.events.names())

	got, err := f.uc.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
