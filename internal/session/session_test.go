package session

import (
	"reflect"
	"testing"

	"cartsync/internal/transport"
)

func TestSession_LoginLogout(t *testing.T) {
	s := New()
	if s.Authenticated() {
		t.Fatal("new session should be unauthenticated")
	}

	var events []bool
	s.Subscribe(func(auth bool) { events = append(events, auth) })

	s.Login("tok-1")
	if !s.Authenticated() || s.Token() != "tok-1" {
		t.Errorf("after Login: Authenticated=%v Token=%q", s.Authenticated(), s.Token())
	}

	s.Login("tok-2")
	s.Logout()
	s.Logout()

	if s.Authenticated() || s.Token() != "" {
		t.Errorf("after Logout: Authenticated=%v Token=%q", s.Authenticated(), s.Token())
	}

	want := []bool{true, true, false}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestSession_EmptyTokenLogsOut(t *testing.T) {
	s := New()
	s.Login("tok")

	var events []bool
	s.Subscribe(func(auth bool) { events = append(events, auth) })
	s.Login("")

	if s.Authenticated() {
		t.Error("Login(\"\") should log out")
	}
	if !reflect.DeepEqual(events, []bool{false}) {
		t.Errorf("events = %v, want [false]", events)
	}
}

func TestSession_IsTokenSource(t *testing.T) {
	var _ transport.TokenSource = New()
}
