package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/transport"
)

type fakeConn struct {
	handler   transport.FrameHandler
	subs      []func(transport.Event)
	open      bool
	connects  int
	disconnds int
	sent      []string
}

func (f *fakeConn) SetFrameHandler(h transport.FrameHandler) { f.handler = h }

func (f *fakeConn) Send(data []byte) error {
	if !f.open {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeConn) Connect(_ context.Context, boardID model.ID, token string) error {
	f.connects++
	f.open = true
	for _, fn := range f.subs {
		fn(transport.Event{Kind: transport.EventConnect, BoardID: boardID})
	}
	return nil
}

func (f *fakeConn) Disconnect() {
	f.disconnds++
	f.open = false
	f.subs = nil
	f.handler = nil
}

func (f *fakeConn) Subscribe(fn func(transport.Event)) func() {
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeConn) deliver(frame string) {
	if f.handler != nil {
		f.handler([]byte(frame))
	}
}

type fakeIdentity struct {
	token string
	user  model.User
}

func (f fakeIdentity) RequireToken() (string, error) {
	if f.token == "" {
		return "", auth.ErrAuthRequired
	}
	return f.token, nil
}

func (f fakeIdentity) User() model.User { return f.user }

type fakeHistory struct {
	msgs []model.Message
	err  error
}

func (f fakeHistory) Messages(context.Context, model.ID, int) ([]model.Message, error) {
	return f.msgs, f.err
}

var ann = model.User{ID: "1", Username: "ann"}

func newTestSession(t *testing.T, h History) (*Session, *fakeConn, *notify.Relay) {
	t.Helper()
	conn := &fakeConn{}
	relay := notify.NewRelay(notify.WithDedupWindow(0))
	s := NewSession(Options{
		BoardID:  "5",
		Identity: fakeIdentity{token: "tok", user: ann},
		Conn:     conn,
		History:  h,
		Notify:   relay,
	})
	t.Cleanup(s.Close)
	return s, conn, relay
}

func frame(id, board, userID, username, content string) string {
	return fmt.Sprintf(`{"id":%q,"board_id":%q,"user_id":%q,"username":%q,"content":%q}`, id, board, userID, username, content)
}

func contents(msgs []model.Message) string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return strings.Join(out, ",")
}

func TestSession_ArrivalOrderIgnoresOtherBoards(t *testing.T) {
	s, conn, _ := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.deliver(frame("a", "5", "2", "bob", "A"))
	conn.deliver(frame("b", "5", "2", "bob", "B"))
	conn.deliver(frame("x", "9", "3", "eve", "X"))
	conn.deliver(frame("c", "5", "2", "bob", "C"))

	if got := contents(s.Messages()); got != "A,B,C" {
		t.Fatalf("expected A,B,C; got %s", got)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("expected connected; got %s", s.Status())
	}
}

func TestSession_RosterFirstSeenOrder(t *testing.T) {
	hist := fakeHistory{msgs: []model.Message{
		{ID: "h1", BoardID: "5", UserID: "3", Username: "carol", Content: "old"},
		{ID: "h2", BoardID: "5", UserID: "2", Username: "bob", Content: "older"},
		{ID: "h3", BoardID: "5", UserID: "3", Username: "carol", Content: "again"},
	}}
	s, conn, _ := newTestSession(t, hist)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.deliver(frame("m1", "5", "2", "bob", "hi"))
	conn.deliver(frame("m2", "5", "", "dave", "no id"))
	conn.deliver(frame("m3", "5", "1", "ann", "me"))
	conn.deliver(frame("m4", "5", "", "dave", "still no id"))

	var names []string
	for _, p := range s.Participants() {
		names = append(names, p.Username)
	}
	if strings.Join(names, ",") != "carol,bob,ann,dave" {
		t.Fatalf("unexpected roster %v", names)
	}
	if got := contents(s.Messages()); got != "old,older,again,hi,no id,me,still no id" {
		t.Fatalf("unexpected log %s", got)
	}
}

func TestSession_RosterHasOneEntryPerAuthor(t *testing.T) {
	hist := fakeHistory{msgs: []model.Message{
		{ID: "h1", BoardID: "5", UserID: "3", Username: "carol", Content: "one"},
		{ID: "h2", BoardID: "5", UserID: "2", Username: "bob", Content: "two"},
		{ID: "h3", BoardID: "5", UserID: "3", Username: "carol", Content: "three"},
	}}
	s, _, _ := newTestSession(t, hist)
	s.LoadHistory(context.Background())

	ps := s.Participants()
	if len(ps) != 2 {
		t.Fatalf("expected 2 roster entries for 2 authors; got %d: %+v", len(ps), ps)
	}
	if ps[0].Username != "carol" || ps[1].Username != "bob" {
		t.Fatalf("unexpected roster order %+v", ps)
	}
}

func TestSession_RosterMergesNameOnlyAuthor(t *testing.T) {
	s, conn, _ := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.deliver(frame("m1", "5", "", "bob", "before login"))
	conn.deliver(frame("m2", "5", "2", "bob", "after login"))
	conn.deliver(frame("m3", "5", "", "bob", "legacy client"))

	ps := s.Participants()
	if len(ps) != 1 {
		t.Fatalf("expected bob once; got %+v", ps)
	}
	if ps[0].UserID != "2" || ps[0].Key != "id:2" {
		t.Fatalf("expected entry upgraded to user id 2; got %+v", ps[0])
	}

	// Same name under a different id is a different person.
	conn.deliver(frame("m4", "5", "7", "bob", "another bob"))
	if got := len(s.Participants()); got != 2 {
		t.Fatalf("expected distinct ids to stay separate; got %d", got)
	}
}

func TestSession_HistoryFailureIsLiveOnly(t *testing.T) {
	s, conn, relay := newTestSession(t, fakeHistory{err: errors.New("503")})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(s.Messages()) != 0 {
		t.Fatalf("expected empty log")
	}
	if relay.UnreadCount() != 0 {
		t.Fatalf("history failure must not notify")
	}
	conn.deliver(frame("a", "5", "2", "bob", "live"))
	if got := contents(s.Messages()); got != "live" {
		t.Fatalf("expected live message; got %s", got)
	}
}

func TestSession_NotificationsSkipSelf(t *testing.T) {
	s, conn, relay := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.deliver(frame("1", "5", "1", "ann", "my own message"))
	if relay.UnreadCount() != 0 || s.Unread() != 0 {
		t.Fatalf("self message must not notify")
	}

	long := strings.Repeat("x", 80)
	conn.deliver(frame("2", "5", "2", "bob", long))
	list := relay.List()
	if len(list) != 1 || list[0].Severity != notify.Info || list[0].Title != "bob" {
		t.Fatalf("expected info notification from bob; got %+v", list)
	}
	if list[0].Message != strings.Repeat("x", 50)+"..." {
		t.Fatalf("expected truncated preview; got %q", list[0].Message)
	}

	conn.deliver(frame("3", "5", "2", "bob", "hey @ann look"))
	if top := relay.List()[0]; top.Severity != notify.Warning {
		t.Fatalf("expected mention warning; got %+v", top)
	}
	if s.Unread() != 2 {
		t.Fatalf("expected 2 unread; got %d", s.Unread())
	}
	s.MarkSeen()
	if s.Unread() != 0 {
		t.Fatalf("expected unread reset")
	}
}

func TestSession_DuplicateDeliveryKept(t *testing.T) {
	s, conn, _ := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.deliver(frame("1", "5", "2", "bob", "A"))
	conn.deliver(frame("1", "5", "2", "bob", "A"))
	if len(s.Messages()) != 2 || s.Duplicates() != 1 {
		t.Fatalf("expected duplicate kept and counted; got %d msgs, %d dups", len(s.Messages()), s.Duplicates())
	}
}

func TestSession_SendInput(t *testing.T) {
	s, conn, _ := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.SetInput("   \t ")
	if s.SendInput() {
		t.Fatalf("blank input must not send")
	}
	if s.Input() != "   \t " || len(conn.sent) != 0 {
		t.Fatalf("blank send must be a no-op; input=%q sent=%v", s.Input(), conn.sent)
	}

	s.SetInput("hello ")
	s.Mention("bob")
	if s.Input() != "hello @bob " {
		t.Fatalf("unexpected input %q", s.Input())
	}
	if !s.SendInput() {
		t.Fatalf("expected send")
	}
	if s.Input() != "" {
		t.Fatalf("expected buffer cleared")
	}
	if len(conn.sent) != 1 || !strings.Contains(conn.sent[0], `"mentions":["bob"]`) {
		t.Fatalf("unexpected frames %v", conn.sent)
	}

	// Dropped while closed, but the buffer is still cleared.
	conn.open = false
	s.SetInput("lost")
	if s.SendInput() || s.Input() != "" {
		t.Fatalf("expected drop with cleared buffer")
	}
}

func TestSession_ConnectWithoutToken(t *testing.T) {
	conn := &fakeConn{}
	relay := notify.NewRelay()
	s := NewSession(Options{BoardID: "42", Identity: fakeIdentity{}, Conn: conn, Notify: relay})
	defer s.Close()

	err := s.Connect(context.Background())
	if !errors.Is(err, auth.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired; got %v", err)
	}
	if conn.connects != 0 {
		t.Fatalf("expected no connection attempt")
	}
	if l := relay.List(); len(l) != 1 || l[0].Severity != notify.Error {
		t.Fatalf("expected auth error notification; got %+v", l)
	}
}

func TestSession_CloseDisconnects(t *testing.T) {
	s, conn, _ := newTestSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Close()
	s.Close()
	if conn.disconnds != 1 {
		t.Fatalf("expected one disconnect; got %d", conn.disconnds)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected")
	}
	if err := s.Connect(context.Background()); err == nil {
		t.Fatalf("expected error reconnecting a closed session")
	}
}

func TestParseMentions(t *testing.T) {
	got := ParseMentions("hi @bob and @Ann, also @bob. mail a@b")
	if strings.Join(got, ",") != "bob,Ann,b" {
		t.Fatalf("unexpected mentions %v", got)
	}
}
