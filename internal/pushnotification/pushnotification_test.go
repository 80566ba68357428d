package pushnotification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/pushsubscription"
	"github.com/infinitech/infinitask/internal/pushsubscription/repositoryimpl"
	"github.com/infinitech/infinitask/pkg/cerr"
	"github.com/infinitech/infinitask/pkg/storage"
)

func newRepo(t *testing.T) *repositoryimpl.YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorageOnFs(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(s)
}

func newVAPIDEnv(t *testing.T) *config.VAPIDEnv {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &config.VAPIDEnv{VAPIDPublicKey: pub, VAPIDPrivateKey: priv, VAPIDContact: "ops@example.com"}
}

func newBrowserSubscription(t *testing.T, endpoint string) *pushsubscription.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &pushsubscription.Subscription{
		ID:        pushsubscription.IDForEndpoint(endpoint),
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
		CreatedAt: time.Now(),
	}
}

func TestSender_SendToAll(t *testing.T) {
	ctx := context.Background()
	var received atomic.Int32
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			return
		}
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	repo := newRepo(t)
	live := newBrowserSubscription(t, pushService.URL+"/push/live")
	gone := newBrowserSubscription(t, pushService.URL+"/push/gone")
	require.NoError(t, repo.Save(ctx, live))
	require.NoError(t, repo.Save(ctx, gone))

	sender := NewSender(newVAPIDEnv(t), repo)
	res := sender.SendToAll(ctx, &NotificationPayload{Title: "Task overdue", Body: "Report"})

	assert.Equal(t, SendResult{Sent: 1, Removed: 1}, res)
	assert.Equal(t, int32(2), received.Load())
	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, live.Endpoint, subs[0].Endpoint)
}

func TestSender_NotConfigured(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.Save(context.Background(), newBrowserSubscription(t, "http://127.0.0.1:1/push")))

	sender := NewSender(&config.VAPIDEnv{}, repo)
	assert.False(t, sender.Configured())
	assert.Equal(t, SendResult{}, sender.SendToAll(context.Background(), &NotificationPayload{Title: "x"}))
}

func TestPayloadFor(t *testing.T) {
	p := payloadFor(&eventbus.Event{Type: eventbus.EventTaskAlarm, ResourceID: "1", Title: "Report"})
	require.NotNil(t, p)
	assert.Equal(t, "Task due in 1 minute", p.Title)
	assert.Equal(t, "Report", p.Body)
	assert.Equal(t, "task_alarm:1", p.Tag)

	p = payloadFor(&eventbus.Event{Type: eventbus.EventTaskOverdue, ResourceID: "2"})
	require.NotNil(t, p)
	assert.Equal(t, "Task overdue", p.Title)
	assert.Equal(t, "Task 2", p.Body)

	assert.Nil(t, payloadFor(&eventbus.Event{Type: eventbus.EventTasksRefreshed}))
	assert.Nil(t, payloadFor(&eventbus.Event{Type: eventbus.EventOverdueUpdateFailed}))
}

func TestDispatcher_ForwardsAlarms(t *testing.T) {
	var received atomic.Int32
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	repo := newRepo(t)
	require.NoError(t, repo.Save(context.Background(), newBrowserSubscription(t, pushService.URL+"/push")))
	bus := eventbus.New()
	subID, events := bus.Subscribe(16)
	defer bus.Unsubscribe(subID)
	d := NewDispatcher(NewSender(newVAPIDEnv(t), repo))

	// Published before the dispatcher goroutine runs.
	bus.PublishNew(eventbus.EventTasksRefreshed, "", "", nil)
	bus.PublishNew(eventbus.EventTaskAlarm, "1", "Report", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx, events)
		close(done)
	}()

	assert.Eventually(t, func() bool { return received.Load() == 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, int32(1), received.Load(), "only the alarm is pushed")
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	r.Route("/api/push", h.Routes)
	return r
}

func TestHandler(t *testing.T) {
	repo := newRepo(t)
	vapid := newVAPIDEnv(t)
	h := NewHandler(repo, NewSender(vapid, repo))
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/push/vapid-public-key")
	require.NoError(t, err)
	var key map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&key))
	resp.Body.Close()
	assert.Equal(t, vapid.VAPIDPublicKey, key["public_key"])

	body := `{"endpoint":"https://push.example/abc","keys":{"p256dh":"p","auth":"a"}}`
	resp, err = http.Post(srv.URL+"/api/push/subscriptions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	subs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/abc", subs[0].Endpoint)

	resp, err = http.Post(srv.URL+"/api/push/subscriptions", "application/json", strings.NewReader(`{"endpoint":""}`))
	require.NoError(t, err)
	var apiErr struct {
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidArgument", apiErr.Code)
	assert.Len(t, apiErr.Details, 3)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/push/subscriptions", strings.NewReader(`{"endpoint":"https://push.example/abc"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	subs, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHandler_NotConfigured(t *testing.T) {
	repo := newRepo(t)
	srv := httptest.NewServer(newTestRouter(NewHandler(repo, NewSender(&config.VAPIDEnv{}, repo))))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/push/vapid-public-key")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/push/test", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}
