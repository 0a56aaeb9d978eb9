package nethttp

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"runtime"

	"github.com/gorilla/mux"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

// Handler is a wrapped http.Handler.
type Handler struct {
	a     *Adapter
	inner http.Handler
	name  string
	kind  string
}

var _ http.Handler = (*Handler)(nil)

// Name returns withKuyo(<wrapped name>).
func (h *Handler) Name() string {
	return "withKuyo(" + h.name + ")"
}

// Unwrap returns the wrapped handler.
func (h *Handler) Unwrap() http.Handler {
	return h.inner
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st, r := h.a.requestState(r)
	defer func() {
		if rec := recover(); rec != nil {
			h.a.capturePanic(st, rec, r, h.kind, h.name)
			panic(rec)
		}
	}()
	h.inner.ServeHTTP(w, r)
}

// APIHandler is a wrapped kuyo.APIHandler.
type APIHandler struct {
	a     *Adapter
	inner kuyo.APIHandler
	name  string
}

var _ kuyo.APIHandler = (*APIHandler)(nil)

// Name returns withKuyo(<wrapped name>).
func (h *APIHandler) Name() string {
	return "withKuyo(" + h.name + ")"
}

// Unwrap returns the wrapped handler.
func (h *APIHandler) Unwrap() kuyo.APIHandler {
	return h.inner
}

func (h *APIHandler) ServeAPI(w http.ResponseWriter, r *http.Request) error {
	st, r := h.a.requestState(r)
	defer func() {
		if rec := recover(); rec != nil {
			h.a.capturePanic(st, rec, r, "api", h.name)
			panic(rec)
		}
	}()

	err := h.inner.ServeAPI(w, r)
	if err != nil && !st.captured {
		st.captured = true
		h.a.CaptureException(err, h.a.requestExtra(r, "api", h.name))
	}
	return err
}

// HandleAPI adapts an API handler to http.Handler, answering 500 when it
// returns an error.
func HandleAPI(h kuyo.APIHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.ServeAPI(w, r); err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

// requestState is shared by nested wrappers of one request so a failure is
// captured by the innermost boundary only.
type requestState struct {
	captured bool
}

type stateKey struct{}

func (a *Adapter) requestState(r *http.Request) (*requestState, *http.Request) {
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		return st, r
	}
	st := &requestState{}
	ctx := context.WithValue(r.Context(), stateKey{}, st)
	ctx = kuyo.WithCapturer(ctx, a.c)
	return st, r.WithContext(ctx)
}

func (a *Adapter) capturePanic(st *requestState, rec any, r *http.Request, kind, name string) {
	// The server uses ErrAbortHandler to abort a response on purpose.
	if rec == http.ErrAbortHandler || st.captured {
		return
	}
	st.captured = true
	a.CaptureException(kuyo.NewPanicError(rec), a.requestExtra(r, kind, name))
}

func (a *Adapter) requestExtra(r *http.Request, kind, name string) map[string]any {
	extra := make(map[string]any, 8)
	for k, v := range kuyo.ExtraFromContext(r.Context()) {
		extra[k] = v
	}
	extra["source"] = kind
	extra["handler"] = name
	extra["method"] = r.Method
	extra["path"] = r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			extra["route"] = tpl
		}
		if vars := mux.Vars(r); len(vars) > 0 {
			params := make(map[string]any, len(vars))
			for k, v := range vars {
				params[k] = v
			}
			extra["params"] = params
		}
	}
	for _, hdr := range a.headers {
		if v := r.Header.Get(hdr); v != "" {
			extra["header."+hdr] = v
		}
	}
	return extra
}

// handlerName names a handler by its Name method, its function symbol, or
// its type.
func handlerName(h any) string {
	switch v := h.(type) {
	case nil:
		return "anonymous"
	case kuyo.Named:
		return v.Name()
	case http.HandlerFunc:
		return funcName(v)
	case kuyo.APIHandlerFunc:
		return funcName(v)
	}
	return fmt.Sprintf("%T", h)
}

func funcName(fn any) string {
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return "anonymous"
}
