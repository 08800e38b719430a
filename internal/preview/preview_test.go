package preview

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/style"
)

const wait = 2 * time.Second
const tick = 10 * time.Millisecond

// recorder captures every envelope an endpoint receives.
type recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recorder) add(env Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.envs))
	for i, e := range r.envs {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func heroBlocks(title string) []storefront.Block {
	return []storefront.Block{{
		ID:   "hero-main",
		Type: storefront.TypeHero,
		Content: storefront.HeroContent{
			Slides: []storefront.Slide{{ID: "slide-1", Title: title}},
		},
	}}
}

func initPayload() InitPayload {
	return InitPayload{
		Config:     style.Theme{ThemeColor: "#111111"},
		Blocks:     heroBlocks("Welcome"),
		Footer:     []storefront.Block{},
		ActivePage: "home",
		Products:   []catalog.Product{{ID: "p1", Name: "Mug"}},
		Menus:      []catalog.Menu{{ID: "main", Items: []catalog.MenuItem{}}},
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	env, err := NewEnvelope(TypeReady, nil)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"preview-ready"}`, string(data))

	title := "About"
	env, err = NewEnvelope(TypeUpdate, UpdatePayload{ActivePage: &title})
	require.NoError(t, err)
	assert.JSONEq(t, `{"activePage":"About"}`, string(env.Payload))

	var u UpdatePayload
	require.NoError(t, env.Decode(&u))
	assert.Nil(t, u.Blocks)
	assert.Equal(t, "About", *u.ActivePage)

	assert.Error(t, Envelope{Type: TypeInit}.Decode(&u))
}

func TestUpdateMergeLatestWins(t *testing.T) {
	a, b := "a", "b"
	blocks := heroBlocks("x")
	u := UpdatePayload{ActivePage: &a}.Merge(UpdatePayload{Blocks: &blocks}).Merge(UpdatePayload{ActivePage: &b})
	assert.Equal(t, "b", *u.ActivePage)
	assert.Equal(t, blocks, *u.Blocks)
	assert.Nil(t, u.Config)
	assert.True(t, UpdatePayload{}.Empty())
}

func TestMemoryPairDropsWithoutHandlerAndAfterClose(t *testing.T) {
	a, b := NewMemoryPair()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, Envelope{Type: "early"}))

	var rec recorder
	b.OnMessage(rec.add)
	for _, typ := range []string{"one", "two", "three"} {
		require.NoError(t, a.Send(ctx, Envelope{Type: typ}))
	}
	assert.Eventually(t, func() bool { return len(rec.types()) == 3 }, wait, tick)
	assert.Equal(t, []string{"one", "two", "three"}, rec.types())

	require.NoError(t, a.Close())
	require.NoError(t, a.Send(ctx, Envelope{Type: "late"}))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.types(), 3)
}

func TestInitIsBufferedUntilReady(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	var rec recorder
	surfaceEnd.OnMessage(rec.add)

	ed := NewEditor(editorEnd)
	require.NoError(t, ed.SetInitial(context.Background(), initPayload()))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.types(), "nothing is sent before ready")
	assert.False(t, ed.Ready())

	require.NoError(t, surfaceEnd.Send(context.Background(), Envelope{Type: TypeReady}))
	assert.Eventually(t, func() bool { return rec.count(TypeInit) == 1 }, wait, tick)
	assert.True(t, ed.Ready())
	assert.True(t, ed.InitSent())

	// A second ready does not resend init.
	require.NoError(t, surfaceEnd.Send(context.Background(), Envelope{Type: TypeReady}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count(TypeInit))
}

func TestReadyBeforeInitialSendsOnSetInitial(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	var rec recorder
	surfaceEnd.OnMessage(rec.add)
	ed := NewEditor(editorEnd)

	require.NoError(t, surfaceEnd.Send(context.Background(), Envelope{Type: TypeReady}))
	assert.Eventually(t, ed.Ready, wait, tick)
	assert.Empty(t, rec.types())

	require.NoError(t, ed.SetInitial(context.Background(), initPayload()))
	assert.Eventually(t, func() bool { return rec.count(TypeInit) == 1 }, wait, tick)
}

func TestEditorSurfaceRoundTrip(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	ctx := context.Background()

	ed := NewEditor(editorEnd)
	clicked := make(chan string, 1)
	sections := make(chan string, 1)
	ed.OnBlockClick(func(id string) { clicked <- id })
	ed.OnSectionClick(func(name string) { sections <- name })

	require.NoError(t, ed.SetInitial(ctx, initPayload()))

	// Updates before init merge into the buffered init.
	early := heroBlocks("Changed before ready")
	require.NoError(t, ed.Update(ctx, UpdatePayload{Blocks: &early}))

	states := make(chan State, 8)
	surface := NewSurface(surfaceEnd, func(s State) { states <- s })
	require.NoError(t, surface.Mount(ctx))
	require.NoError(t, surface.Mount(ctx))

	var st State
	select {
	case st = <-states:
	case <-time.After(wait):
		t.Fatal("no init received")
	}
	assert.True(t, st.Initialized)
	assert.Equal(t, "Changed before ready", st.Blocks[0].Content.(storefront.HeroContent).Slides[0].Title)
	assert.Equal(t, "#111111", st.Config.ThemeColor)

	// Partial update keeps collaborator data and untouched fields.
	page := "about"
	require.NoError(t, ed.Update(ctx, UpdatePayload{ActivePage: &page}))
	select {
	case st = <-states:
	case <-time.After(wait):
		t.Fatal("no update received")
	}
	assert.Equal(t, "about", st.ActivePage)
	assert.Equal(t, []catalog.Product{{ID: "p1", Name: "Mug"}}, st.Products)
	assert.Len(t, st.Blocks, 1)

	require.NoError(t, surface.ClickBlock(ctx, "hero-main"))
	select {
	case id := <-clicked:
		assert.Equal(t, "hero-main", id)
	case <-time.After(wait):
		t.Fatal("no block click received")
	}

	require.NoError(t, surface.ClickSection(ctx, "footer"))
	select {
	case name := <-sections:
		assert.Equal(t, "footer", name)
	case <-time.After(wait):
		t.Fatal("no section click received")
	}

	assert.Equal(t, "about", surface.State().ActivePage)
}

// slowInit delays the init send, as marshalling a large catalog would.
type slowInit struct {
	Channel
	delay time.Duration
}

func (c slowInit) Send(ctx context.Context, env Envelope) error {
	if env.Type == TypeInit {
		time.Sleep(c.delay)
	}
	return c.Channel.Send(ctx, env)
}

func TestUpdateDuringInitSendArrivesAfterInit(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	ctx := context.Background()

	ed := NewEditor(slowInit{Channel: editorEnd, delay: 100 * time.Millisecond})
	require.NoError(t, ed.SetInitial(ctx, initPayload()))

	var rec recorder
	surface := NewSurface(surfaceEnd, func(State) {})
	surfaceEnd.OnMessage(func(env Envelope) {
		rec.add(env)
		surface.handle(env)
	})
	require.NoError(t, surface.Mount(ctx))
	require.Eventually(t, ed.InitSent, wait, time.Millisecond)

	edited := heroBlocks("Edited")
	require.NoError(t, ed.Update(ctx, UpdatePayload{Blocks: &edited}))

	require.Eventually(t, func() bool { return len(rec.types()) == 2 }, wait, tick)
	assert.Equal(t, []string{TypeInit, TypeUpdate}, rec.types())
	st := surface.State()
	assert.True(t, st.Initialized)
	assert.Equal(t, "Edited", st.Blocks[0].Content.(storefront.HeroContent).Slides[0].Title)
}

func TestSetInitialAfterInitSendsEmptyFooter(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	var rec recorder
	surfaceEnd.OnMessage(rec.add)
	ed := NewEditor(editorEnd)
	ctx := context.Background()

	require.NoError(t, ed.SetInitial(ctx, initPayload()))
	require.NoError(t, surfaceEnd.Send(ctx, Envelope{Type: TypeReady}))
	require.Eventually(t, ed.InitSent, wait, tick)

	next := initPayload()
	next.Footer = nil
	require.NoError(t, ed.SetInitial(ctx, next))
	require.Eventually(t, func() bool { return rec.count(TypeUpdate) == 1 }, wait, tick)

	rec.mu.Lock()
	last := rec.envs[len(rec.envs)-1]
	rec.mu.Unlock()
	var fields map[string]json.RawMessage
	require.NoError(t, last.Decode(&fields))
	assert.JSONEq(t, `[]`, string(fields["footer"]))
}

func TestThrottlerCoalescesBursts(t *testing.T) {
	editorEnd, surfaceEnd := NewMemoryPair()
	var rec recorder
	surfaceEnd.OnMessage(rec.add)
	ed := NewEditor(editorEnd)
	ctx := context.Background()

	require.NoError(t, ed.SetInitial(ctx, initPayload()))
	require.NoError(t, surfaceEnd.Send(ctx, Envelope{Type: TypeReady}))
	require.Eventually(t, ed.InitSent, wait, tick)

	th := NewThrottler(ed, 5, 1)

	var last string
	for i := 0; i < 50; i++ {
		title := string(rune('a' + i%26))
		blocks := heroBlocks(title)
		th.Update(UpdatePayload{Blocks: &blocks})
		last = title
	}
	th.Stop()
	require.NoError(t, th.Flush(ctx))

	lastTitle := func() string {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		final := rec.envs[len(rec.envs)-1]
		if final.Type != TypeUpdate {
			return ""
		}
		var u UpdatePayload
		if final.Decode(&u) != nil || u.Blocks == nil {
			return ""
		}
		return (*u.Blocks)[0].Content.(storefront.HeroContent).Slides[0].Title
	}
	assert.Eventually(t, func() bool { return lastTitle() == last }, wait, tick)
	assert.Less(t, rec.count(TypeUpdate), 50)
}

func TestThrottlerStopIsIdempotent(t *testing.T) {
	a, _ := NewMemoryPair()
	th := NewThrottler(NewEditor(a), 10, 1)
	th.Stop()
	th.Stop()
}
