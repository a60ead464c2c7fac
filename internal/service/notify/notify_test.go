package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ludo-service/internal/service/game"
	"ludo-service/internal/service/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type failingSink struct{}

func (failingSink) Notify(context.Context, game.Notification) error {
	return errors.New("push gateway down")
}

func TestRedisSinkPublishesPerPlayer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "ludo:notify:a")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink := notify.Fanout{notify.NewLogSink(), notify.NewRedisSink(rdb)}
	want := game.Notification{MatchID: "m1", PlayerID: "a", Kind: "match_won", Message: "all_home"}
	if err := sink.Notify(ctx, want); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got game.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not published")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	sink := notify.Fanout{failingSink{}, notify.NewLogSink()}
	if err := sink.Notify(context.Background(), game.Notification{PlayerID: "a"}); err == nil {
		t.Fatal("expected the failing sink's error")
	}
}
