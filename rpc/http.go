package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/MixinNetwork/tcpipc/logger"
	"github.com/MixinNetwork/tcpipc/network"
	"github.com/MixinNetwork/tcpipc/storage"
	"github.com/dimfeld/httptreemux"
	"github.com/gorilla/handlers"
	"github.com/unrolled/render"
)

// Link is the part of a network link the endpoint inspects and drives.
type Link interface {
	Id() string
	Role() network.Role
	RemoteAddr() net.Addr
	Running() bool
	QueueStats() (int, int)
	Metrics() *network.MetricPool
	Send(m *network.Message) error
	Receive() *network.Message
}

type R struct {
	Link  Link
	Store storage.Store
}

type Call struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func NewRouter(link Link, store storage.Store) *httptreemux.TreeMux {
	router, impl := httptreemux.New(), &R{Link: link, Store: store}
	router.POST("/", impl.handle)
	registerHanders(router)
	return router
}

func registerHanders(router *httptreemux.TreeMux) {
	router.MethodNotAllowedHandler = func(w http.ResponseWriter, r *http.Request, _ map[string]httptreemux.HandlerFunc) {
		render.New().JSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
	router.NotFoundHandler = func(w http.ResponseWriter, r *http.Request) {
		render.New().JSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, rcv any) {
		logger.Errorf("RPC PANIC %v %s\n", rcv, debug.Stack())
		render.New().JSON(w, http.StatusInternalServerError, map[string]any{"error": fmt.Sprint(rcv)})
	}
}

func (impl *R) handle(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var call Call
	d := json.NewDecoder(r.Body)
	d.UseNumber()
	if err := d.Decode(&call); err != nil {
		render.New().JSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	logger.Debugf("RPC %s %v\n", call.Method, call.Params)

	var data any
	var err error
	switch call.Method {
	case "getinfo":
		data, err = getInfo(impl.Link, impl.Store)
	case "sendmessage":
		data, err = sendMessage(impl.Link, impl.Store, call.Params)
	case "receivemessage":
		data, err = receiveMessage(impl.Link)
	case "listmessages":
		data, err = listMessages(impl.Store, call.Params)
	default:
		render.New().JSON(w, http.StatusNotFound, map[string]any{"error": "invalid method " + call.Method})
		return
	}
	if err != nil {
		render.New().JSON(w, http.StatusOK, map[string]any{"error": err.Error()})
	} else {
		render.New().JSON(w, http.StatusOK, map[string]any{"data": data})
	}
}

func handleCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "OPTIONS,POST")
		w.Header().Set("Access-Control-Max-Age", "600")
		if r.Method == "OPTIONS" {
			render.New().JSON(w, http.StatusOK, map[string]any{})
		} else {
			handler.ServeHTTP(w, r)
		}
	})
}

func NewHandler(link Link, store storage.Store) http.Handler {
	router := NewRouter(link, store)
	handler := handleCORS(router)
	return handlers.ProxyHeaders(handler)
}

func NewServer(link Link, store storage.Store, port int) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: NewHandler(link, store),
	}
}

func StartHTTP(link Link, store storage.Store, port int) error {
	return NewServer(link, store, port).ListenAndServe()
}
