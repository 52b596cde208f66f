package notify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRelay(t *testing.T) (*RedisRelay, *Hub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub()
	relay := NewRedisRelay(hub, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go relay.Run(ctx)

	waitFor(t, func() bool {
		n, err := rdb.PubSubNumSub(context.Background(), relayChannel).Result()
		return err == nil && n[relayChannel] == 1
	})
	return relay, hub, mr
}

func TestRedisRelay_NotifyReachesLocalConnection(t *testing.T) {
	relay, hub, _ := newTestRelay(t)
	srv := newTestServer(t, hub, relay, nil)
	conn, id := dial(t, srv, nil)

	relay.Notify(context.Background(), id, NewEvent(KindLoginSuccess))

	var ev Event
	readJSON(t, conn, &ev)
	if ev.Kind != KindLoginSuccess {
		t.Errorf("expected loginSuccess, got %q", ev.Kind)
	}
}

func TestRedisRelay_Broadcast(t *testing.T) {
	relay, hub, _ := newTestRelay(t)
	srv := newTestServer(t, hub, relay, nil)
	conn, _ := dial(t, srv, nil)

	relay.Broadcast(context.Background(), NewEvent(KindNewDataReady))

	var ev Event
	readJSON(t, conn, &ev)
	if ev.Kind != KindNewDataReady {
		t.Errorf("expected newDataReady, got %q", ev.Kind)
	}
}

func TestRedisRelay_FallsBackToLocalWhenRedisDown(t *testing.T) {
	relay, hub, mr := newTestRelay(t)
	srv := newTestServer(t, hub, relay, nil)
	conn, id := dial(t, srv, nil)

	mr.Close()
	relay.Notify(context.Background(), id, NewEvent(KindTokenExpired))

	var ev Event
	readJSON(t, conn, &ev)
	if ev.Kind != KindTokenExpired {
		t.Errorf("expected tokenExpired, got %q", ev.Kind)
	}
}

func TestRedisRelay_IgnoresGarbage(t *testing.T) {
	relay, hub, mr := newTestRelay(t)
	srv := newTestServer(t, hub, relay, nil)
	conn, id := dial(t, srv, nil)

	mr.Publish(relayChannel, "not json")
	relay.Notify(context.Background(), id, NewEvent(KindLoginFailed))

	var ev Event
	readJSON(t, conn, &ev)
	if ev.Kind != KindLoginFailed {
		t.Errorf("expected loginFailed after garbage message, got %q", ev.Kind)
	}
}
