package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kisscoffee/site/internal/gate"
	"kisscoffee/site/internal/reconcile"
	"kisscoffee/site/internal/settings"
	"kisscoffee/site/internal/util"
)

const (
	editorCookie     = "kc_editor"
	maxEditors       = 1000
	editorSweepEvery = time.Minute
	defaultEditorTTL = 2 * time.Hour
)

// editor is one browser's admin page: its sign-in state and the snapshot it
// edits. mu serialises the requests of that browser.
type editor struct {
	mu       sync.Mutex
	id       string
	gate     *gate.Gate
	rec      *reconcile.Reconciler
	lastSeen time.Time
}

// documentStore writes through the service on behalf of one editor so
// accepted writes are archived under the signed-in user's name.
type documentStore struct {
	service *Service
	author  func() string
}

func (d documentStore) Fetch(ctx context.Context) (settings.Settings, error) {
	return d.service.FetchSettings(ctx)
}

func (d documentStore) Save(ctx context.Context, patch settings.Patch) error {
	return d.service.SaveSettings(ctx, patch, d.author())
}

type editorRegistry struct {
	mu        sync.Mutex
	editors   map[string]*editor
	ttl       time.Duration
	limit     int
	now       func() time.Time
	lastSweep time.Time
	service   *Service
}

func newEditorRegistry(service *Service, ttl time.Duration) *editorRegistry {
	if ttl <= 0 {
		ttl = defaultEditorTTL
	}
	return &editorRegistry{
		editors: make(map[string]*editor),
		ttl:     ttl,
		limit:   maxEditors,
		now:     time.Now,
		service: service,
	}
}

func (r *editorRegistry) newEditor(id string) *editor {
	g := gate.New(r.service)
	ed := &editor{id: id, gate: g}
	ed.rec = reconcile.New(documentStore{
		service: r.service,
		author: func() string {
			if sess, ok := g.Session(); ok {
				return sess.UserName
			}
			return ""
		},
	})
	g.OnSessionChange(func(authenticated bool) {
		if !authenticated {
			ed.rec.Reset()
		}
	})
	return ed
}

// lookup returns the locked editor of the requesting browser, or nil when it
// has none or it expired. Callers must unlock it.
func (r *editorRegistry) lookup(req *http.Request) *editor {
	now := r.now()

	r.mu.Lock()
	r.sweepLocked(now)
	var ed *editor
	if cookie, err := req.Cookie(editorCookie); err == nil {
		ed = r.editors[cookie.Value]
	}
	if ed != nil {
		ed.lastSeen = now
	}
	r.mu.Unlock()

	if ed == nil {
		return nil
	}
	ed.mu.Lock()
	return ed
}

// acquire is lookup that creates an editor and sets its cookie when the
// browser has none. Only sign-in creates editors.
func (r *editorRegistry) acquire(w http.ResponseWriter, req *http.Request) *editor {
	if ed := r.lookup(req); ed != nil {
		return ed
	}
	now := r.now()

	r.mu.Lock()
	if len(r.editors) >= r.limit {
		r.evictOldestLocked()
	}
	ed := r.newEditor(util.NewToken("ed", 16))
	ed.lastSeen = now
	r.editors[ed.id] = ed
	r.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     editorCookie,
		Value:    ed.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   req.TLS != nil,
	})
	ed.mu.Lock()
	return ed
}

// sweepLocked drops editors idle for longer than the TTL, at most once per
// editorSweepEvery.
func (r *editorRegistry) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < editorSweepEvery {
		return
	}
	r.lastSweep = now
	for id, ed := range r.editors {
		if now.Sub(ed.lastSeen) > r.ttl {
			delete(r.editors, id)
		}
	}
}

func (r *editorRegistry) evictOldestLocked() {
	var oldest *editor
	for _, ed := range r.editors {
		if oldest == nil || ed.lastSeen.Before(oldest.lastSeen) {
			oldest = ed
		}
	}
	if oldest != nil {
		delete(r.editors, oldest.id)
	}
}

func (r *editorRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.editors)
}
