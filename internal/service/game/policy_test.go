package game_test

import (
	"context"
	"testing"
	"time"

	"ludo-service/internal/service/game"
	"ludo-service/pkg/protocol"

	"github.com/jonboulle/clockwork"
)

func waitForStatus(t *testing.T, svc *game.Service, matchID string, want protocol.Status) protocol.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := mustSnapshot(t, svc, matchID)
		if snap.Status == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("match %s stayed %s, want %s", matchID, snap.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCountdownForfeitExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := game.NewCountdownForfeit(30*time.Second, clock)
	svc := game.NewService(game.Config{}, game.WithClock(clock), game.WithHeartbeats(policy))
	policy.Attach(svc)
	svc.SeedMatch(playingSnapshot("m-drop"))

	ctx := context.Background()
	if _, err := svc.Heartbeat(ctx, "m-drop", "a"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if _, err := svc.Heartbeat(ctx, "m-drop", "b"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !policy.Pending("m-drop", "a") {
		t.Fatal("heartbeat should arm a countdown")
	}

	// b keeps heartbeating, a goes quiet
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		if _, err := svc.Heartbeat(ctx, "m-drop", "b"); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
	}
	if mustSnapshot(t, svc, "m-drop").Status != protocol.StatusPlaying {
		t.Fatal("match ended before the grace period")
	}

	clock.Advance(6 * time.Second)
	snap := waitForStatus(t, svc, "m-drop", protocol.StatusResult)
	if snap.WinnerID != "b" {
		t.Fatalf("expected b to win by forfeit, got %q", snap.WinnerID)
	}
	svc.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for policy.Pending("m-drop", "b") {
		if time.Now().After(deadline) {
			t.Fatal("countdowns should be cleared once the match is forfeited")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCountdownForfeitResetOnReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := game.NewCountdownForfeit(10*time.Second, clock)
	svc := game.NewService(game.Config{}, game.WithClock(clock))
	policy.Attach(svc)
	svc.SeedMatch(playingSnapshot("m-flaky"))

	policy.PlayerOffline("m-flaky", "a")
	clock.Advance(8 * time.Second)
	policy.PlayerOffline("m-flaky", "a") // already counting; must not restart
	policy.PlayerOnline("m-flaky", "a")
	clock.Advance(8 * time.Second)

	if mustSnapshot(t, svc, "m-flaky").Status != protocol.StatusPlaying {
		t.Fatal("reconnect should restart the countdown")
	}

	policy.Clear("m-flaky")
	if policy.Pending("m-flaky", "a") {
		t.Fatal("clear should cancel the countdown")
	}
	clock.Advance(time.Minute)
	if mustSnapshot(t, svc, "m-flaky").Status != protocol.StatusPlaying {
		t.Fatal("cleared countdown must not forfeit")
	}
}

func TestCountdownForfeitIgnoresSilentSubscriber(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := game.NewCountdownForfeit(10*time.Second, clock)
	svc := game.NewService(game.Config{}, game.WithClock(clock), game.WithHeartbeats(policy))
	policy.Attach(svc)
	svc.SeedMatch(playingSnapshot("m-silent"))

	// a stays subscribed but never heartbeats
	policy.PlayerOnline("m-silent", "a")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		clock.Advance(5 * time.Second)
		if _, err := svc.Heartbeat(ctx, "m-silent", "b"); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
	}

	snap := waitForStatus(t, svc, "m-silent", protocol.StatusResult)
	if snap.WinnerID != "b" {
		t.Fatalf("expected b to win by forfeit, got %q", snap.WinnerID)
	}
	svc.Wait()
}
