package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
)

func TestJoinCreatesRoomLazily(t *testing.T) {
	reg := NewRoomRegistry(time.Minute)
	defer reg.Close()

	if reg.RoomCount() != 0 {
		t.Fatal("registry must start empty")
	}

	if err := reg.Join("r1", domain.Participant{ID: "a", Name: "Alice"}); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if reg.RoomCount() != 1 {
		t.Fatalf("expected 1 room, got %d", reg.RoomCount())
	}

	if err := reg.Join("r1", domain.Participant{ID: "a"}); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("duplicate join: got %v, want ErrAlreadyJoined", err)
	}
}

func TestRoomDeletedAfterGracePeriod(t *testing.T) {
	reg := NewRoomRegistry(30 * time.Millisecond)
	defer reg.Close()

	_ = reg.Join("r1", domain.Participant{ID: "a"})
	remaining, err := reg.Leave("r1", "a")
	if err != nil || remaining != 0 {
		t.Fatalf("leave: remaining=%d err=%v", remaining, err)
	}

	// still present inside the grace window
	if reg.RoomCount() != 1 {
		t.Fatal("room deleted before grace period elapsed")
	}

	deadline := time.Now().Add(time.Second)
	for reg.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room survived the grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRejoinWithinGraceKeepsRoomAlive(t *testing.T) {
	reg := NewRoomRegistry(50 * time.Millisecond)
	defer reg.Close()

	_ = reg.Join("r1", domain.Participant{ID: "a"})
	_, _ = reg.Leave("r1", "a")

	// reconnect before the timer fires
	if err := reg.Join("r1", domain.Participant{ID: "a2"}); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if reg.RoomCount() != 1 {
		t.Fatal("rejoin did not cancel the deferred deletion")
	}
	if _, err := reg.Get("r1", "a2"); err != nil {
		t.Fatalf("member lost after rejoin: %v", err)
	}
}

func TestLeaveUnknownParticipant(t *testing.T) {
	reg := NewRoomRegistry(time.Minute)
	defer reg.Close()

	if _, err := reg.Leave("nope", "a"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("got %v, want ErrRoomNotFound", err)
	}

	_ = reg.Join("r1", domain.Participant{ID: "a"})
	if _, err := reg.Leave("r1", "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("got %v, want ErrParticipantNotFound", err)
	}
}

func TestUpdateMediaState(t *testing.T) {
	reg := NewRoomRegistry(time.Minute)
	defer reg.Close()

	_ = reg.Join("r1", domain.Participant{ID: "a", Name: "Alice"})

	p, err := reg.UpdateMediaState("r1", "a", domain.MediaState{CameraOn: true, ScreenSharing: true})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !p.Media.CameraOn || !p.Media.ScreenSharing || p.Media.MicOn {
		t.Fatalf("unexpected media state: %+v", p.Media)
	}

	stored, _ := reg.Get("r1", "a")
	if stored.Media != p.Media {
		t.Fatalf("media state not persisted: %+v", stored.Media)
	}
}
