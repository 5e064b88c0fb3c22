package accessory

import (
	"context"
	"errors"
	"testing"
)

func newTestAccessory(t *testing.T, name string, transport *MockTransport) *Accessory {
	t.Helper()
	cfg := testAccessoryConfig()
	cfg.Name = name
	a, err := New(Options{Config: cfg, Dial: transport.Dial})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestRegistry_AddGetList(t *testing.T) {
	r := NewRegistry()

	lamp := newTestAccessory(t, "Lamp", NewMockTransport())
	kettle := newTestAccessory(t, "Kettle", NewMockTransport())

	if err := r.Add(lamp); err != nil {
		t.Fatalf("Add(lamp) error = %v", err)
	}
	if err := r.Add(kettle); err != nil {
		t.Fatalf("Add(kettle) error = %v", err)
	}

	got, err := r.Get("Kettle")
	if err != nil || got != kettle {
		t.Errorf("Get(Kettle) = %v, %v; want kettle", got, err)
	}

	if _, err := r.Get("Toaster"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(Toaster) error = %v, want ErrNotFound", err)
	}

	list := r.List()
	if len(list) != 2 || list[0] != lamp || list[1] != kettle {
		t.Errorf("List() not in registration order")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(newTestAccessory(t, "Lamp", NewMockTransport())); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	err := r.Add(newTestAccessory(t, "Lamp", NewMockTransport()))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Add() error = %v, want ErrDuplicateName", err)
	}
	if err := r.Add(nil); err == nil {
		t.Error("Add(nil) error = nil, want error")
	}
}

func TestRegistry_StartClose(t *testing.T) {
	r := NewRegistry()
	t1 := NewMockTransport()
	t2 := NewMockTransport()
	_ = r.Add(newTestAccessory(t, "Lamp", t1))
	_ = r.Add(newTestAccessory(t, "Kettle", t2))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(t1.GetSubscriptions()) == 0 || len(t2.GetSubscriptions()) == 0 {
		t.Error("Start() did not start every accessory")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !t1.closed || !t2.closed {
		t.Error("Close() did not close every transport")
	}
}

func TestNotifiers_FanOut(t *testing.T) {
	first := &MockNotifier{}
	second := &MockNotifier{}
	var fromFunc []Change

	ns := Notifiers{first, nil, second, NotifierFunc(func(c Change) {
		fromFunc = append(fromFunc, c)
	})}

	ns.CharacteristicChanged(Change{Accessory: "Lamp", Characteristic: CharacteristicOn, Value: true, Origin: OriginUser})

	if len(first.GetChanges()) != 1 || len(second.GetChanges()) != 1 || len(fromFunc) != 1 {
		t.Error("change not delivered to every notifier")
	}
}
