package gantry

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gantryhq/gantry/kv"
)

type pingRequest struct {
	Name string `json:"name"`
}

type pingResponse struct {
	Message string `json:"message"`
}

type pingHandler struct {
	store kv.Store
	log   *logrus.Logger
}

func newPingHandler(store kv.Store, log *logrus.Logger) *pingHandler {
	return &pingHandler{store: store, log: log}
}

func (h *pingHandler) Handle(ctx context.Context, req pingRequest) (pingResponse, error) {
	return pingResponse{Message: "hello " + req.Name}, nil
}

type echoHandler struct{}

func newEchoHandler() *echoHandler { return &echoHandler{} }

func (h *echoHandler) Handle(ctx context.Context, req pingRequest) (pingRequest, error) {
	return req, nil
}

type account struct {
	ID string `json:"id" table:"pk"`
}

type session struct {
	UserID string `json:"userId" table:"pk"`
	Token  string `json:"token" table:"sk"`
}

func TestRegister(t *testing.T) {
	app := New()

	reg := Register[pingRequest, pingResponse](app, "GET", "/ping/{name}", newPingHandler)
	if reg.Name != "ping-handler" {
		t.Errorf("derived name = %q, want %q", reg.Name, "ping-handler")
	}
	if reg.Method != "GET" || reg.Path != "/ping/{name}" {
		t.Errorf("route = %s %s", reg.Method, reg.Path)
	}
	if reg.RequestType.Name() != "pingRequest" || reg.ResponseType.Name() != "pingResponse" {
		t.Errorf("shapes = %s -> %s", reg.RequestType, reg.ResponseType)
	}

	Register[pingRequest, pingRequest](app, "POST", "/echo", newEchoHandler, WithName("echo"))

	regs := app.Functions(nil)
	if len(regs) != 2 {
		t.Fatalf("got %d registrations, want 2", len(regs))
	}
	if regs[0].Name != "ping-handler" || regs[1].Name != "echo" {
		t.Errorf("registration order not preserved: %s, %s", regs[0].Name, regs[1].Name)
	}

	posts := app.Functions(func(r *FunctionRegistration) bool { return r.Method == "POST" })
	if len(posts) != 1 || posts[0].Name != "echo" {
		t.Errorf("predicate filter returned %d registrations", len(posts))
	}
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate function name")
		}
	}()
	app := New()
	Register[pingRequest, pingResponse](app, "GET", "/a", newPingHandler)
	Register[pingRequest, pingResponse](app, "GET", "/b", newPingHandler)
}

func TestRegisterRejectsNonHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for constructor not returning a handler")
		}
	}()
	app := New()
	// response type mismatch: echoHandler handles pingRequest->pingRequest
	Register[pingRequest, pingResponse](app, "GET", "/a", newEchoHandler)
}

func TestConstruct(t *testing.T) {
	log := logrus.New()
	store := kv.NewMemoryStore()
	app := New(WithLogger(log), WithStore(store))
	reg := Register[pingRequest, pingResponse](app, "GET", "/ping/{name}", newPingHandler)

	h, err := app.Construct(reg)
	if err != nil {
		t.Fatalf("Construct() failed: %v", err)
	}
	ph, ok := h.(*pingHandler)
	if !ok {
		t.Fatalf("Construct() returned %T", h)
	}
	if ph.store != kv.Store(store) || ph.log != log {
		t.Error("store/logger not injected")
	}

	resp, err := reg.Call(context.Background(), h, &pingRequest{Name: "Alice"})
	if err != nil {
		t.Fatalf("Call() failed: %v", err)
	}
	if resp.(pingResponse).Message != "hello Alice" {
		t.Errorf("Call() = %v", resp)
	}
}

type mailer interface{ Send(to string) error }

type smtpMailer struct{}

func (smtpMailer) Send(string) error { return nil }

type mailHandler struct{ m mailer }

func newMailHandler(m mailer) *mailHandler { return &mailHandler{m: m} }

func (h *mailHandler) Handle(ctx context.Context, req pingRequest) (pingResponse, error) {
	return pingResponse{}, nil
}

func TestProvideSatisfiesInterfaceParams(t *testing.T) {
	app := New()
	reg := Register[pingRequest, pingResponse](app, "POST", "/mail", newMailHandler)

	if _, err := app.Construct(reg); err == nil {
		t.Fatal("expected construction to fail before Provide")
	}

	app.Provide(smtpMailer{})
	if _, err := app.Construct(reg); err != nil {
		t.Fatalf("Construct() after Provide failed: %v", err)
	}
}

func TestResourceLayering(t *testing.T) {
	app := New(WithResourceOverrides(map[string]ResourceOverride{
		"ping-handler": {MemoryMB: 512},
	}))
	reg := Register[pingRequest, pingResponse](app, "GET", "/ping/{name}", newPingHandler,
		WithMemory(256), WithTimeout(10*time.Second))

	res := app.ResolvedResources(reg)
	if res.MemoryMB != 512 {
		t.Errorf("override layer should win: memory=%d", res.MemoryMB)
	}
	if res.Timeout != 10*time.Second {
		t.Errorf("unset override field must keep registration value: timeout=%s", res.Timeout)
	}

	other := Register[pingRequest, pingRequest](app, "POST", "/echo", newEchoHandler, WithName("echo"))
	res = app.ResolvedResources(other)
	if res != DefaultResources {
		t.Errorf("defaults should apply: %+v", res)
	}
}

func TestRegisterEntity(t *testing.T) {
	app := New(WithTablePrefix("dev-"))

	first := RegisterEntity[account](app)
	again := RegisterEntity[account](app, WithTableName("ignored"))
	if first != again {
		t.Error("duplicate entity registration must return the first registration")
	}
	RegisterEntity[session](app)

	entities := app.Entities()
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}
	if entities[0].Definition.TableName != "account" {
		t.Errorf("first-wins violated: table name %q", entities[0].Definition.TableName)
	}

	specs := app.TableSpecs()
	spec, ok := specs["dev-session"]
	if !ok {
		t.Fatalf("missing prefixed spec, got %v", specs)
	}
	if spec.PartitionAttr != "userId" || spec.SortAttr != "token" {
		t.Errorf("spec = %+v", spec)
	}
}
