package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

func TestSession_NotReadyBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session("u1", core.PlanFree)

	assert.ErrorIs(t, s.ToggleFilter("relation"), core.ErrSessionNotReady)
	assert.ErrorIs(t, s.MoveNodes(map[core.TableID]core.Position{"x": {}}), core.ErrSessionNotReady)
	assert.ErrorIs(t, s.SaveNow(context.Background()), core.ErrSessionNotReady)
	assert.ErrorIs(t, s.SyncSchema(context.Background()), core.ErrSessionNotReady)
	_, err := s.Undo()
	assert.ErrorIs(t, err, core.ErrSessionNotReady)
	assert.False(t, s.Ready())
}

func TestSession_StartLocalOnlyShowsDemo(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.True(t, st.Demo)
	assert.False(t, st.Connected)
	assert.False(t, st.Dirty)
	assert.Equal(t, len(demoTables), st.Tables)
	// demo data ignores the free tier cap
	assert.Equal(t, len(demoTables), st.Visible)
	assert.False(t, st.Capped)
	assert.Equal(t, 0, h.schema.calls())
}

func TestSession_StartAppliesCloudAndResumes(t *testing.T) {
	cloud := &fakeCloud{record: &core.CloudSyncRecord{
		ID:           "u1",
		Positions:    map[core.TableID]core.Position{"db-1": {X: 5, Y: 6}},
		Filters:      []string{"title"},
		HideIsolated: boolPtr(false),
		NotionToken:  strPtr("secret_cloud"),
	}}
	h := newHarness(t, cloud)
	s := h.started(t, "u1", core.PlanFree)

	assert.Equal(t, []string{"secret_cloud"}, h.schema.tokens)

	st := s.Status()
	assert.False(t, st.Demo)
	assert.True(t, st.Connected)
	assert.False(t, st.Dirty, "resuming is not a user change")
	assert.Equal(t, 5, st.Tables)
	assert.Equal(t, 4, st.Visible)
	assert.True(t, st.Capped)

	// first four by original order
	assert.Equal(t, core.NewIDSet("db-1", "db-2", "db-3", "db-4"), s.VisibleIDs())

	// cloud values were written through to the local store
	scope := h.eng.Store().Scope("u1")
	assert.Equal(t, "secret_cloud", scope.ProviderToken())
	assert.Equal(t, []string{"title"}, scope.Filters())
	assert.Equal(t, core.Position{X: 5, Y: 6}, scope.Positions()["db-1"])

	g := s.Graph()
	for _, n := range g.Nodes {
		if n.ID == "db-1" {
			assert.Equal(t, core.Position{X: 5, Y: 6}, n.Position)
		}
	}
}

func TestSession_CloudNilFieldsKeepLocal(t *testing.T) {
	cloud := &fakeCloud{record: &core.CloudSyncRecord{ID: "u1", HiddenDBs: []core.TableID{"demo-notes"}}}
	h := newHarness(t, cloud)

	scope := h.eng.Store().Scope("u1")
	require.NoError(t, scope.SetFilters([]string{"date"}))
	require.NoError(t, scope.SetHiddenDBs([]core.TableID{"demo-tasks"}))

	s := h.started(t, "u1", core.PlanFree)
	vis := s.Visibility()

	assert.Contains(t, vis.SelectedPropertyTypes, "date")
	assert.Contains(t, vis.HiddenTableIDs, "demo-notes")
	assert.NotContains(t, vis.HiddenTableIDs, "demo-tasks")
	assert.False(t, s.Status().Dirty)
}

func TestSession_ProFreeTier(t *testing.T) {
	cloud := &fakeCloud{record: &core.CloudSyncRecord{ID: "u1", NotionToken: strPtr("tok")}}
	h := newHarness(t, cloud)
	s := h.started(t, "u1", core.PlanPro)

	assert.Len(t, s.VisibleIDs(), 5)
	assert.False(t, s.Status().Capped)
}

func TestSession_FilterMutatorsPersistAndDirty(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)
	scope := h.eng.Store().Scope("u1")

	require.NoError(t, s.ToggleFilter("relation"))
	require.NoError(t, s.ToggleHiddenTable("demo-projects"))
	require.NoError(t, s.ToggleHideIsolated())
	require.NoError(t, s.SetColor("demo-tasks", "#000000"))

	assert.True(t, s.Status().Dirty)
	assert.Equal(t, []string{"relation"}, scope.Filters())
	assert.Equal(t, []core.TableID{"demo-projects"}, scope.HiddenDBs())
	assert.True(t, scope.HideIsolated())
	assert.Equal(t, "#000000", scope.CustomColors()["demo-tasks"])

	visible := s.VisibleIDs()
	assert.False(t, visible.Has("demo-projects"))
	assert.False(t, visible.Has("demo-notes"), "no relation property and isolated")

	require.NoError(t, s.ClearFilters())
	assert.Equal(t, []string{}, scope.Filters())
	assert.False(t, scope.HideIsolated())
	assert.Equal(t, []core.TableID{"demo-projects"}, scope.HiddenDBs())

	require.NoError(t, s.ResetColor("demo-tasks"))
	assert.NotContains(t, scope.CustomColors(), "demo-tasks")
}

func TestSession_VisibleGraphDropsDanglingEdges(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	require.NoError(t, s.ToggleHiddenTable("demo-tasks"))
	g := s.VisibleGraph()

	for _, n := range g.Nodes {
		assert.NotEqual(t, "demo-tasks", n.ID)
	}
	for _, e := range g.Edges {
		assert.NotEqual(t, "demo-tasks", e.Source)
		assert.NotEqual(t, "demo-tasks", e.Target)
	}
}

func TestSession_MoveUndoRedo(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	start := s.Graph().Positions()["demo-projects"]

	require.NoError(t, s.MoveNodes(map[core.TableID]core.Position{"demo-projects": {X: 1, Y: 1}}))
	h.clock.Advance(600 * time.Millisecond)
	require.NoError(t, s.MoveNodes(map[core.TableID]core.Position{"demo-projects": {X: 2, Y: 2}}))

	ok, err := s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.Position{X: 1, Y: 1}, s.Graph().Positions()["demo-projects"])

	ok, err = s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start, s.Graph().Positions()["demo-projects"])

	ok, err = s.Undo()
	require.NoError(t, err)
	assert.False(t, ok, "at the oldest snapshot")

	ok, err = s.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.Position{X: 1, Y: 1}, s.Graph().Positions()["demo-projects"])

	assert.Equal(t, core.Position{X: 1, Y: 1}, h.eng.Store().Scope("u1").Positions()["demo-projects"])
}

func TestSession_MoveWithinDebounceKeepsPosition(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	require.NoError(t, s.MoveNodes(map[core.TableID]core.Position{"demo-tasks": {X: 1}}))
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, s.MoveNodes(map[core.TableID]core.Position{"demo-tasks": {X: 2}}))

	assert.Equal(t, core.Position{X: 2}, s.Graph().Positions()["demo-tasks"])

	// only the first move produced a snapshot
	ok, _ := s.Undo()
	require.True(t, ok)
	ok, _ = s.Undo()
	assert.False(t, ok)
}

func TestSession_SaveNow(t *testing.T) {
	cloud := &fakeCloud{refresh: &cloudsync.Credentials{AccessToken: "fresh", RefreshToken: "r2"}}
	h := newHarness(t, cloud)
	s := h.started(t, "u1", core.PlanFree)

	require.NoError(t, s.ToggleFilter("date"))
	require.NoError(t, s.MoveNodes(map[core.TableID]core.Position{"demo-tasks": {X: 9, Y: 9}}))
	require.True(t, s.Status().Dirty)

	require.NoError(t, s.SaveNow(context.Background()))

	rec := cloud.lastWrite()
	assert.Equal(t, "u1", rec.ID)
	assert.Equal(t, []string{"date"}, rec.Filters)
	assert.Equal(t, core.Position{X: 9, Y: 9}, rec.Positions["demo-tasks"])
	require.NotNil(t, rec.HideIsolated)
	assert.Nil(t, rec.NotionToken)
	assert.NotNil(t, rec.HiddenDBs)

	st := s.Status()
	assert.False(t, st.Dirty)
	require.NotNil(t, st.LastSavedAt)
	assert.Equal(t, "fresh", s.Credentials().AccessToken)
}

func TestSession_SaveNowFailureStaysDirty(t *testing.T) {
	cloud := &fakeCloud{writeErr: &core.SyncError{Kind: core.KindSessionExpired, Message: core.SessionExpiredMessage}}
	h := newHarness(t, cloud)
	s := h.started(t, "u1", core.PlanFree)

	require.NoError(t, s.ToggleHideIsolated())
	err := s.SaveNow(context.Background())
	assert.ErrorIs(t, err, core.ErrSessionExpired)

	st := s.Status()
	assert.True(t, st.Dirty)
	assert.Equal(t, "session_expired", st.LastErrorKind)
}

func TestSession_SaveNowUsesStateAtCallTime(t *testing.T) {
	cloud := &fakeCloud{}
	h := newHarness(t, cloud)
	s := h.started(t, "u1", core.PlanFree)

	require.NoError(t, s.ToggleFilter("url"))

	var once sync.Once
	cloud.onWrite = func() {
		once.Do(func() { require.NoError(t, s.ToggleFilter("email")) })
	}
	require.NoError(t, s.SaveNow(context.Background()))

	assert.Equal(t, []string{"url"}, cloud.lastWrite().Filters)
	assert.True(t, s.Status().Dirty, "a change during the save keeps the session dirty")
}

func TestSession_ConnectAndDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanPro)

	require.NoError(t, s.ConnectProvider(context.Background(), "secret_new"))
	st := s.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, 5, st.Tables)
	assert.True(t, st.Dirty)
	assert.Equal(t, "secret_new", h.eng.Store().Scope("u1").ProviderToken())

	require.NoError(t, s.DisconnectProvider())
	st = s.Status()
	assert.True(t, st.Demo)
	assert.False(t, st.Connected)
	assert.Equal(t, "", h.eng.Store().Scope("u1").ProviderToken())
}

func TestSession_ConnectInvalidTokenIsForgotten(t *testing.T) {
	h := newHarness(t, nil)
	h.schema.err = &core.SyncError{Kind: core.KindInvalidCredential, Status: 401, Message: core.InvalidCredentialMessage}
	s := h.started(t, "u1", core.PlanFree)

	err := s.ConnectProvider(context.Background(), "bad")
	assert.ErrorIs(t, err, core.ErrInvalidCredential)
	assert.Equal(t, "", h.eng.Store().Scope("u1").ProviderToken())
	assert.True(t, s.Status().Demo)
}

func TestSession_ConnectNetworkErrorKeepsToken(t *testing.T) {
	h := newHarness(t, nil)
	h.schema.err = core.NewNetworkError(assert.AnError)
	s := h.started(t, "u1", core.PlanFree)

	err := s.ConnectProvider(context.Background(), "tok")
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Equal(t, "tok", h.eng.Store().Scope("u1").ProviderToken())
	assert.Equal(t, "network_error", s.Status().LastErrorKind)
}

func TestSession_PropertyTypes(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	types := s.PropertyTypes()
	assert.Contains(t, types, "relation")
	assert.Contains(t, types, "multi_select")
	assert.IsIncreasing(t, types)
}

func TestSession_Onboarding(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)

	assert.False(t, s.OnboardingSeen())
	require.NoError(t, s.MarkOnboardingSeen())
	assert.True(t, s.OnboardingSeen())
	assert.True(t, s.Status().OnboardingSeen)
}

func TestSession_NotifiesOnChange(t *testing.T) {
	h := newHarness(t, nil)
	s := h.started(t, "u1", core.PlanFree)
	for len(h.events) > 0 {
		<-h.events
	}

	require.NoError(t, s.ToggleFilter("title"))
	select {
	case id := <-h.events:
		assert.Equal(t, "u1", id)
	default:
		t.Fatal("expected change notification")
	}
}
