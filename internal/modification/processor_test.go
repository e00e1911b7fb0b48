package modification

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/pubsub"
	"github.com/zjrosen/nametags/internal/registry"
	"github.com/zjrosen/nametags/internal/sessions"
	"github.com/zjrosen/nametags/internal/store"
	"github.com/zjrosen/nametags/internal/styledtext"
	"github.com/zjrosen/nametags/internal/testutil"
)

const actor = "steve"

type env struct {
	proc     *Processor
	sessions *sessions.Store
	tags     *registry.Registry[domain.Properties]
	driver   *testutil.MemoryDriver[domain.Properties]
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	driver := testutil.NewMemoryDriver[domain.Properties]()
	testutil.NewBuilder(t).WithStandardTags().BuildTags(driver)

	p := pool.NewWorkerPool(pool.Config{MaxWorkers: 2})
	tags := registry.New("tags", store.NewAsync[domain.Properties]("tags", driver, p))
	require.NoError(t, tags.Start(context.Background()))

	s := sessions.NewStore()
	e := &env{
		proc:     NewProcessor(s, tags, opts...),
		sessions: s,
		tags:     tags,
		driver:   driver,
	}
	t.Cleanup(func() {
		e.proc.Close()
		s.Close()
		_ = tags.Close(context.Background())
		p.Close()
	})
	return e
}

// arm starts a session on tag with the given context.
func (e *env) arm(t *testing.T, tag string, c Context) {
	t.Helper()
	require.True(t, e.sessions.Save(sessions.Session{ActorID: actor, TargetTag: tag}))
	e.sessions.Update(actor, c)
}

func (e *env) process(t *testing.T, input string) Result {
	t.Helper()
	res, err := e.proc.Process(context.Background(), actor, input)
	require.NoError(t, err)
	require.False(t, e.sessions.Exists(actor), "session must be destroyed")
	return res
}

func (e *env) stored(t *testing.T, id string) domain.Properties {
	t.Helper()
	agg, err := e.driver.Find(context.Background(), id)
	require.NoError(t, err)
	return agg.Payload()
}

func TestProcess_NoSession(t *testing.T) {
	e := newEnv(t)

	_, err := e.proc.Process(context.Background(), actor, "green")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestProcess_Color(t *testing.T) {
	e := newEnv(t)

	e.arm(t, "member", ContextColor)
	res := e.process(t, "green")
	require.Equal(t, OutcomeModified, res.Outcome)
	require.Equal(t, domain.ColorWhite, res.Before.Color)
	require.Equal(t, domain.ColorGreen, res.After.Color)
	require.Equal(t, domain.ColorGreen, e.tags.FindInCache("member").Payload().Color)
	require.Equal(t, domain.ColorGreen, e.stored(t, "member").Color)

	e.arm(t, "member", ContextColor)
	res = e.process(t, "GREEN")
	require.Equal(t, OutcomeUnchanged, res.Outcome)

	saves := e.driver.Calls(testutil.OpSave)
	e.arm(t, "member", ContextColor)
	res = e.process(t, "not-a-color")
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, ErrUnknownColor)
	require.Equal(t, domain.ColorGreen, e.tags.FindInCache("member").Payload().Color)
	require.Equal(t, saves, e.driver.Calls(testutil.OpSave))
}

func TestProcess_PrefixClear(t *testing.T) {
	e := newEnv(t)

	e.arm(t, "member", ContextPrefix)
	res := e.process(t, "clear")
	require.Equal(t, OutcomeUnchanged, res.Outcome, "member has no prefix")

	e.arm(t, "admin", ContextPrefix)
	res = e.process(t, "CLEAR")
	require.Equal(t, OutcomeCleared, res.Outcome)
	require.NotNil(t, res.Before.Prefix)
	require.Nil(t, res.After.Prefix)
	require.Nil(t, e.tags.FindInCache("admin").Payload().Prefix)
	require.Nil(t, e.stored(t, "admin").Prefix)
	require.Equal(t, domain.ColorRed, e.stored(t, "admin").Color, "other fields are kept")
}

func TestProcess_PrefixSet(t *testing.T) {
	e := newEnv(t)

	e.arm(t, "member", ContextPrefix)
	res := e.process(t, "&a[Member] ")
	require.Equal(t, OutcomeModified, res.Outcome)
	require.Equal(t, "&a[Member] ", res.After.Prefix.String())

	e.arm(t, "member", ContextPrefix)
	res = e.process(t, "&a[Mem&aber] ")
	require.Equal(t, OutcomeUnchanged, res.Outcome, "equal rendering is a no-op")
}

func TestProcess_SuffixParseError(t *testing.T) {
	e := newEnv(t)
	before := e.stored(t, "vip")

	e.arm(t, "vip", ContextSuffix)
	res := e.process(t, "&e&l")
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, styledtext.ErrEmpty)
	require.True(t, before.Equal(e.stored(t, "vip")))
}

func TestProcess_SuffixClearLeavesPrefix(t *testing.T) {
	e := newEnv(t)

	e.arm(t, "vip", ContextSuffix)
	res := e.process(t, "clear")
	require.Equal(t, OutcomeCleared, res.Outcome)
	require.Nil(t, res.After.Suffix)
	require.NotNil(t, res.After.Prefix)
}

func TestProcess_CancelAtEveryContext(t *testing.T) {
	for _, c := range []Context{ContextPrefix, ContextSuffix, ContextColor} {
		t.Run(c.String(), func(t *testing.T) {
			tags := &mockTags{}
			s := sessions.NewStore()
			defer s.Close()
			proc := NewProcessor(s, tags)
			defer proc.Close()

			s.Save(sessions.Session{ActorID: actor, TargetTag: "vip", Context: c})
			res, err := proc.Process(context.Background(), actor, " Cancel ")
			require.NoError(t, err)
			require.Equal(t, OutcomeCancelled, res.Outcome)
			require.False(t, s.Exists(actor))
			tags.AssertNotCalled(t, "FindInBoth", mock.Anything, mock.Anything)
			tags.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestProcess_TagDeletedMidEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NotNil(t, e.tags.FindInBoth(ctx, "vip"))

	e.arm(t, "vip", ContextColor)
	e.tags.Unregister("vip")
	ok, err := e.tags.Delete(ctx, "vip").Await(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	saves := e.driver.Calls(testutil.OpSave)
	res := e.process(t, "green")
	require.Equal(t, OutcomeInvalidTarget, res.Outcome)
	require.False(t, e.driver.Has("vip"))
	require.Nil(t, e.tags.FindInCache("vip"))
	require.Equal(t, saves, e.driver.Calls(testutil.OpSave))
}

func TestProcess_ObserverRejects(t *testing.T) {
	var seen Change
	e := newEnv(t, WithObserver(ObserverFunc(func(_ context.Context, c Change) bool {
		seen = c
		return false
	})))

	saves := e.driver.Calls(testutil.OpSave)
	e.arm(t, "vip", ContextColor)
	res := e.process(t, "green")
	require.Equal(t, OutcomeProcessCancelled, res.Outcome)
	require.Equal(t, Change{ActorID: actor, TagID: "vip", Context: ContextColor, Input: "green"}, seen)
	require.Equal(t, domain.ColorGold, e.tags.FindInCache("vip").Payload().Color)
	require.Equal(t, saves, e.driver.Calls(testutil.OpSave))
}

type presenceFunc func(string) bool

func (f presenceFunc) Online(actorID string) bool { return f(actorID) }

func TestProcess_ActorOffline(t *testing.T) {
	e := newEnv(t, WithPresence(presenceFunc(func(string) bool { return false })))

	e.arm(t, "vip", ContextColor)
	res := e.process(t, "green")
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, ErrActorOffline)
	require.Zero(t, e.driver.Calls(testutil.OpFind), "tag is not consulted")
}

func TestProcess_UnarmedSession(t *testing.T) {
	e := newEnv(t)
	saves := e.driver.Calls(testutil.OpSave)
	require.True(t, e.sessions.Save(sessions.Session{ActorID: actor, TargetTag: "vip"}))

	_, err := e.proc.Process(context.Background(), actor, "green")
	require.ErrorIs(t, err, ErrUnsupportedContext)
	require.False(t, e.sessions.Exists(actor))
	require.Equal(t, saves, e.driver.Calls(testutil.OpSave))
}

func TestProcess_SaveFailureRollsBackCachedChange(t *testing.T) {
	e := newEnv(t)
	e.driver.FailNext(testutil.OpSave, errors.New("disk full"))

	e.arm(t, "vip", ContextColor)
	res := e.process(t, "aqua")
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, ErrSaveFailed)
	require.Equal(t, domain.ColorAqua, res.After.Color)
	require.Equal(t, domain.ColorGold, e.tags.FindInCache("vip").Payload().Color)
	require.Equal(t, domain.ColorGold, e.stored(t, "vip").Color)
}

func TestProcess_ConcurrentLinesConsumeSessionOnce(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var calls atomic.Int32
	e := newEnv(t, WithObserver(ObserverFunc(func(_ context.Context, _ Change) bool {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return true
	})))
	e.arm(t, "vip", ContextColor)

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 2)
	for _, input := range []string{"green", "red"} {
		go func() {
			res, err := e.proc.Process(context.Background(), actor, input)
			results <- outcome{res, err}
		}()
	}

	<-entered
	first := <-results
	close(release)
	second := <-results

	require.Equal(t, int32(1), calls.Load())
	require.ErrorIs(t, first.err, ErrNoSession)
	require.NoError(t, second.err)
	require.Equal(t, OutcomeModified, second.res.Outcome)
	require.False(t, e.sessions.Exists(actor))
}

func TestProcess_PublishesOutcome(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	all := e.proc.Outcomes(ctx)
	changes := e.proc.Outcomes(ctx, pubsub.UpdatedEvent)

	e.arm(t, "vip", ContextColor)
	require.Equal(t, OutcomeCancelled, e.process(t, "cancel").Outcome)
	e.arm(t, "vip", ContextColor)
	res := e.process(t, "red")
	require.Equal(t, OutcomeModified, res.Outcome)

	event, ok := pubsub.Next(ctx, all)
	require.True(t, ok)
	require.Equal(t, pubsub.ResolvedEvent, event.Type)
	require.Equal(t, OutcomeCancelled, event.Payload.Outcome)

	event, ok = pubsub.Next(ctx, all)
	require.True(t, ok)
	require.Equal(t, pubsub.UpdatedEvent, event.Type)

	event, ok = pubsub.Next(ctx, changes)
	require.True(t, ok, "only the committed change reaches the filtered channel")
	require.Equal(t, OutcomeModified, event.Payload.Outcome)
	require.Equal(t, "vip", event.Payload.TagID)
}

func TestProcess_ExpiredSessionMutatesNothing(t *testing.T) {
	driver := testutil.NewMemoryDriver[domain.Properties]()
	testutil.NewBuilder(t).WithStandardTags().BuildTags(driver)
	p := pool.NewWorkerPool(pool.Config{MaxWorkers: 1})
	defer p.Close()
	tags := registry.New("tags", store.NewAsync[domain.Properties]("tags", driver, p))
	defer func() { _ = tags.Close(context.Background()) }()
	s := sessions.NewStore(sessions.WithTTL(20*time.Millisecond), sessions.WithCleanupInterval(5*time.Millisecond))
	defer s.Close()
	proc := NewProcessor(s, tags)
	defer proc.Close()

	s.Save(sessions.Session{ActorID: actor, TargetTag: "vip", Context: ContextColor})
	require.Eventually(t, func() bool { return !s.Exists(actor) }, time.Second, 5*time.Millisecond)

	_, err := proc.Process(context.Background(), actor, "green")
	require.ErrorIs(t, err, ErrNoSession)
	require.Zero(t, driver.Calls(testutil.OpFind))
	require.Equal(t, len(testutil.NewBuilder(t).WithStandardTags().Tags()), driver.Calls(testutil.OpSave),
		"only the fixture saves")
}

// TestProcess_NonMutatingOutcomesLeaveStoreUntouched checks that only
// Modified and Cleared reach the store, and that every resolution destroys
// the session.
func TestProcess_NonMutatingOutcomesLeaveStoreUntouched(t *testing.T) {
	e := newEnv(t)

	rapid.Check(t, func(r *rapid.T) {
		tag := rapid.SampledFrom([]string{"admin", "vip", "member", "ghost"}).Draw(r, "tag")
		c := rapid.SampledFrom([]Context{ContextPrefix, ContextSuffix, ContextColor}).Draw(r, "context")
		input := rapid.OneOf(
			rapid.SampledFrom([]string{"cancel", "clear", "green", "gold", "red", "not-a-color", ""}),
			rapid.StringMatching(`&[a-f0-9lr]?[A-Za-z \[\]]{0,8}`),
		).Draw(r, "input")

		require.True(r, e.sessions.Save(sessions.Session{ActorID: actor, TargetTag: tag, Context: c}))
		saves := e.driver.Calls(testutil.OpSave)

		res, err := e.proc.Process(context.Background(), actor, input)
		require.NoError(r, err)
		require.False(r, e.sessions.Exists(actor))

		if res.Outcome.Mutates() {
			require.Equal(r, saves+1, e.driver.Calls(testutil.OpSave))
			require.False(r, res.Before.Equal(res.After))
			return
		}
		require.Equal(r, saves, e.driver.Calls(testutil.OpSave), "outcome %s", res.Outcome)
		require.True(r, res.Before.Equal(res.After))
		if tag == "ghost" && res.Outcome != OutcomeCancelled {
			require.Equal(r, OutcomeInvalidTarget, res.Outcome)
		}
	})
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "process_cancelled", OutcomeProcessCancelled.String())
	require.Equal(t, "outcome(42)", Outcome(42).String())
	require.True(t, OutcomeCleared.Mutates())
	require.False(t, OutcomeUnchanged.Mutates())
}

type mockTags struct {
	mock.Mock
}

func (m *mockTags) FindInBoth(ctx context.Context, id string) *domain.Tag {
	args := m.Called(ctx, id)
	tag, _ := args.Get(0).(*domain.Tag)
	return tag
}

func (m *mockTags) Save(ctx context.Context, tag *domain.Tag) *pool.Future[bool] {
	args := m.Called(ctx, tag)
	return args.Get(0).(*pool.Future[bool])
}
