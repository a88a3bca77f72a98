package testresources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

const (
	// StreamPath serves every event published with MockService.Publish.
	StreamPath = "/stream"

	// RequestsPath returns the requests the service has received so far, as a JSON array.
	RequestsPath = "/__requests"

	streamChannel = "events"
)

// MockService is an in-process HTTP server with canned responses. Every argument whose key has
// the form "<METHOD> <path>" defines a route; its value is "<status>" or "<status>:<body>".
// Unmatched requests get a 404.
//
// Properties: mock-service.url, or <name>.url when registered under another name.
type MockService struct {
	name     string
	stubs    []stub
	server   *http.Server
	listener net.Listener
	streams  *eventsource.Server
	url      string
	events   []eventsource.Event
	requests []RecordedRequest
	logger   framework.Logger
	lock     sync.Mutex
	served   chan struct{}
}

type stub struct {
	method string
	path   string
	status int
	body   string
}

// RecordedRequest is one request received by a MockService.
type RecordedRequest struct {
	Method string
	Path   string
	Body   string
}

type mockEvent struct {
	name string
	data string
}

func (e mockEvent) Event() string { return e.name }
func (e mockEvent) Id() string    { return "" } //nolint:stylecheck
func (e mockEvent) Data() string  { return e.data }

type eventSourceLogger struct {
	logger framework.Logger
}

func (l eventSourceLogger) Println(args ...interface{}) {
	l.logger.Printf("%s", strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func (l eventSourceLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

func (s *MockService) Init(ic resources.InitContext) error {
	s.name = ic.Name
	s.logger = framework.OrNullLogger(ic.Logger)
	for key, value := range ic.Args {
		st, err := parseStub(key, value)
		if err != nil {
			return err
		}
		s.stubs = append(s.stubs, st)
	}
	sort.Slice(s.stubs, func(i, j int) bool {
		if s.stubs[i].path != s.stubs[j].path {
			return s.stubs[i].path < s.stubs[j].path
		}
		return s.stubs[i].method < s.stubs[j].method
	})
	return nil
}

func parseStub(key, value string) (stub, error) {
	method, path, ok := strings.Cut(strings.TrimSpace(key), " ")
	path = strings.TrimSpace(path)
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return stub{}, fmt.Errorf(`invalid route %q, expected "<METHOD> /path"`, key)
	}
	statusText, body, _ := strings.Cut(value, ":")
	status, err := strconv.Atoi(strings.TrimSpace(statusText))
	if err != nil || status < 100 || status > 599 {
		return stub{}, fmt.Errorf("invalid status %q for route %q", statusText, key)
	}
	return stub{method: strings.ToUpper(method), path: path, status: status, body: body}, nil
}

func (s *MockService) Start(context.Context) (map[string]string, error) {
	s.streams = eventsource.NewServer()
	s.streams.ReplayAll = true
	s.streams.Logger = eventSourceLogger{s.logger}
	s.streams.Register(streamChannel, s)

	router := mux.NewRouter()
	router.HandleFunc(StreamPath, s.streams.Handler(streamChannel)).Methods("GET")
	router.HandleFunc(RequestsPath, s.serveRequests).Methods("GET")
	for _, st := range s.stubs {
		st := st
		router.HandleFunc(st.path, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(st.status)
			_, _ = io.WriteString(w, st.body)
		}).Methods(st.method)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.listener = listener
	s.url = "http://" + listener.Addr().String()
	s.server = &http.Server{Handler: s.recording(router)} //nolint:gosec
	s.served = make(chan struct{})
	go func() {
		defer close(s.served)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Mock service stopped: %s", err)
		}
	}()
	s.logger.Printf("Mock service listening at %s", s.url)

	name := s.name
	if name == "" {
		name = MockServiceName
	}
	return map[string]string{name + ".url": s.url}, nil
}

func (s *MockService) recording(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RequestsPath {
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(strings.NewReader(string(body)))
			}
			s.lock.Lock()
			s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
			s.lock.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *MockService) serveRequests(w http.ResponseWriter, _ *http.Request) {
	writer := jwriter.NewWriter()
	arr := writer.Array()
	for _, r := range s.Requests() {
		obj := arr.Object()
		obj.Name("method").String(r.Method)
		obj.Name("path").String(r.Path)
		obj.Maybe("body", r.Body != "").String(r.Body)
		obj.End()
	}
	arr.End()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(writer.Bytes())
}

// URL is the base URL of the running service.
func (s *MockService) URL() string { return s.url }

// Requests returns a copy of every request received so far, apart from requests to RequestsPath.
func (s *MockService) Requests() []RecordedRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Publish sends an event to every open stream. Streams opened later receive all previously
// published events first, including events published before Start. Data that is not a string
// or json.RawMessage is marshaled as JSON.
func (s *MockService) Publish(eventName string, data any) {
	var text string
	switch d := data.(type) {
	case string:
		text = d
	case json.RawMessage:
		text = string(d)
	default:
		bytes, _ := json.Marshal(d)
		text = string(bytes)
	}
	e := mockEvent{name: eventName, data: text}
	s.lock.Lock()
	s.events = append(s.events, e)
	s.lock.Unlock()
	if s.streams != nil {
		s.logger.Printf("Sending %s event with data: %s", eventName, text)
		s.streams.Publish([]string{streamChannel}, e)
	}
}

// Replay implements eventsource.Repository.
func (s *MockService) Replay(channel, id string) chan eventsource.Event {
	s.lock.Lock()
	events := append([]eventsource.Event(nil), s.events...)
	s.lock.Unlock()
	ch := make(chan eventsource.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

// Handle returns the *MockService itself.
func (s *MockService) Handle() any { return s }

func (s *MockService) Close() error {
	if s.server == nil {
		return nil
	}
	s.streams.Close()
	err := s.server.Close()
	<-s.served
	return err
}
