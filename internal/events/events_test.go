package events

import "testing"

func TestBus(t *testing.T) {
	t.Run("HandlersReceiveMatchingKind", func(t *testing.T) {
		bus := NewBus(4)
		var removed []int64
		bus.Handle(KindTrackRemoved, func(ev Event) {
			removed = append(removed, ev.Payload.(TrackRemoved).TrackID)
		})

		bus.Publish(KindTrackRemoved, TrackRemoved{TrackID: 7})
		bus.Publish(KindLibraryChanged, LibraryChanged{Reason: "saved"})

		if len(removed) != 1 || removed[0] != 7 {
			t.Errorf("expected [7], got %v", removed)
		}
	})

	t.Run("SubscribersNeverBlock", func(t *testing.T) {
		bus := NewBus(1)
		ch, cancel := bus.Subscribe()
		defer cancel()

		bus.Publish(KindPlayerStateChanged, PlayerStateChanged{TrackID: 1})
		bus.Publish(KindPlayerStateChanged, PlayerStateChanged{TrackID: 2})

		ev := <-ch
		if ev.Payload.(PlayerStateChanged).TrackID != 1 {
			t.Errorf("expected first event, got %+v", ev)
		}

		select {
		case extra := <-ch:
			t.Errorf("expected overflow to be dropped, got %+v", extra)
		default:
		}
	})

	t.Run("CancelClosesChannel", func(t *testing.T) {
		bus := NewBus(1)
		ch, cancel := bus.Subscribe()
		cancel()
		cancel()

		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}

		bus.Publish(KindLibraryChanged, nil)
	})

	t.Run("NilBus", func(t *testing.T) {
		var bus *Bus
		bus.Publish(KindLibraryChanged, nil)
	})
}
