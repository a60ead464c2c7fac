package transport

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"ludo-service/pkg/protocol"

	"github.com/nats-io/nats.go"
)

type presenceLog struct {
	mu     sync.Mutex
	events []string
}

func (l *presenceLog) PlayerOnline(matchID, playerID string) {
	l.mu.Lock()
	l.events = append(l.events, "online:"+matchID+":"+playerID)
	l.mu.Unlock()
}

func (l *presenceLog) PlayerOffline(matchID, playerID string) {
	l.mu.Lock()
	l.events = append(l.events, "offline:"+matchID+":"+playerID)
	l.mu.Unlock()
}

func drain(ch <-chan protocol.Message) []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func frameAt(matchID string, v int64) protocol.Frame {
	return protocol.Frame{
		MatchID: matchID,
		Version: v,
		Events:  []protocol.Event{{Version: v, Payload: protocol.TurnSwitch{From: 0, To: 1}}},
	}
}

func TestHubFansOutFramesPerMatch(t *testing.T) {
	hub := NewHub(8)
	a := hub.Subscribe("m1", "a")
	b := hub.Subscribe("m1", "b")
	other := hub.Subscribe("m2", "c")
	drain(a.C)
	drain(b.C)
	drain(other.C)

	hub.Publish(frameAt("m1", 4))

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		msgs := drain(sub.C)
		if len(msgs) != 1 || msgs[0].Type != protocol.MessageFrame || msgs[0].Frame.Version != 4 {
			t.Fatalf("%s: expected one frame v4, got %+v", name, msgs)
		}
	}
	if msgs := drain(other.C); len(msgs) != 0 {
		t.Fatalf("other match received %d messages", len(msgs))
	}
}

func TestHubPresence(t *testing.T) {
	hub := NewHub(8)
	listener := &presenceLog{}
	hub.SetPresenceListener(listener)

	a1 := hub.Subscribe("m1", "a")
	a2 := hub.Subscribe("m1", "a")
	b := hub.Subscribe("m1", "b")

	if got := hub.Presence("m1").Online; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected presence %v", got)
	}
	msgs := drain(a1.C)
	last := msgs[len(msgs)-1]
	if last.Type != protocol.MessagePresence || !reflect.DeepEqual(last.Presence.Online, []string{"a", "b"}) {
		t.Fatalf("expected presence broadcast when b joined, got %+v", last)
	}

	a1.Close()
	a1.Close()
	if !hub.Online("m1", "a") {
		t.Fatal("a still holds a second subscription")
	}
	a2.Close()
	if hub.Online("m1", "a") {
		t.Fatal("a should be offline")
	}
	msgs = drain(b.C)
	last = msgs[len(msgs)-1]
	if last.Type != protocol.MessagePresence || !reflect.DeepEqual(last.Presence.Online, []string{"b"}) {
		t.Fatalf("expected presence broadcast when a left, got %+v", last)
	}
	b.Close()
	if _, ok := <-b.C; ok {
		t.Fatal("closed subscription should close its channel")
	}

	want := []string{"online:m1:a", "online:m1:b", "offline:m1:a", "offline:m1:b"}
	if !reflect.DeepEqual(listener.events, want) {
		t.Fatalf("expected %v, got %v", want, listener.events)
	}
	if got := hub.Presence("m1").Online; len(got) != 0 {
		t.Fatalf("empty match should report nobody online, got %v", got)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe("m1", "a")
	drain(slow.C)

	for v := int64(1); v <= 5; v++ {
		hub.Publish(frameAt("m1", v))
	}
	msgs := drain(slow.C)
	if len(msgs) != 2 || msgs[0].Frame.Version != 1 || msgs[1].Frame.Version != 2 {
		t.Fatalf("expected the first two frames only, got %d messages", len(msgs))
	}
}

type forwardLog struct {
	frames []protocol.Frame
}

func (f *forwardLog) Forward(frame protocol.Frame) { f.frames = append(f.frames, frame) }

func TestRelayDeliversRemoteFramesOnly(t *testing.T) {
	hub := NewHub(8)
	fwd := &forwardLog{}
	hub.SetForwarder(fwd)
	sub := hub.Subscribe("m1", "a")
	drain(sub.C)

	relay := &NATSRelay{hub: hub, origin: "node-a"}
	data, err := json.Marshal(frameAt("m1", 7))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	own := &nats.Msg{Subject: SubjectFor("m1"), Data: data, Header: nats.Header{}}
	own.Header.Set(originHeader, "node-a")
	relay.handle(own)
	if msgs := drain(sub.C); len(msgs) != 0 {
		t.Fatalf("own frames must not be delivered twice, got %d", len(msgs))
	}

	remote := &nats.Msg{Subject: SubjectFor("m1"), Data: data, Header: nats.Header{}}
	remote.Header.Set(originHeader, "node-b")
	relay.handle(remote)
	msgs := drain(sub.C)
	if len(msgs) != 1 || msgs[0].Frame.Version != 7 {
		t.Fatalf("expected remote frame v7, got %+v", msgs)
	}
	if len(fwd.frames) != 0 {
		t.Fatal("remote frames must not be forwarded again")
	}

	mismatched := &nats.Msg{Subject: SubjectFor("m2"), Data: data}
	relay.handle(mismatched)
	if msgs := drain(sub.C); len(msgs) != 0 {
		t.Fatal("frame for another match id must be ignored")
	}

	hub.Publish(frameAt("m1", 8))
	if len(fwd.frames) != 1 || fwd.frames[0].Version != 8 {
		t.Fatalf("local publish should be forwarded, got %+v", fwd.frames)
	}
}

func TestMatchFromSubject(t *testing.T) {
	cases := map[string]string{
		"ludo.match.abc.events":   "abc",
		"ludo.match..events":      "",
		"ludo.match.a.b.events":   "",
		"other.match.abc.events":  "",
		"ludo.match.abc.presence": "",
	}
	for subject, want := range cases {
		got, ok := MatchFromSubject(subject)
		if got != want || ok != (want != "") {
			t.Fatalf("%s: got %q %v", subject, got, ok)
		}
	}
	if SubjectFor("abc") != "ludo.match.abc.events" {
		t.Fatalf("unexpected subject %s", SubjectFor("abc"))
	}
}
