package collab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"collab/api/internal/auth"
	"collab/api/internal/store"

	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake connection closed")

type fakeConn struct {
	mu          sync.Mutex
	inbox       chan []byte
	sent        [][]byte
	writeErr    error
	closed      bool
	closeCode   CloseCode
	closeReason string
	closedCh    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 32), closedCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-c.inbox:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.closedCh:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFakeClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.closedCh)
	return nil
}

func (c *fakeConn) send(t *testing.T, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.inbox <- data
}

func (c *fakeConn) sendRaw(data string) {
	c.inbox <- []byte(data)
}

// hangUp simulates the peer going away.
func (c *fakeConn) hangUp() {
	close(c.inbox)
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, data := range c.sent {
		var msg map[string]any
		_ = json.Unmarshal(data, &msg)
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) ofType(kind MessageType) []map[string]any {
	out := make([]map[string]any, 0)
	for _, msg := range c.messages() {
		if msg["type"] == string(kind) {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeConn) closeState() (bool, CloseCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

type fakeVerifier struct {
	verifyFn func(ctx context.Context, credential string, kind auth.Kind) (Identity, error)
}

func (f *fakeVerifier) Verify(ctx context.Context, credential string, kind auth.Kind) (Identity, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, credential, kind)
	}
	// Tokens in tests are the user id itself.
	return Identity{ID: credential, Username: credential, FullName: "User " + credential, Email: credential + "@example.com"}, nil
}

type fakePersistence struct {
	mu           sync.Mutex
	projects     map[string]ProjectAccess
	records      []store.EditRecord
	getProjectFn func(ctx context.Context, projectID string) (ProjectAccess, error)
	appendFn     func(ctx context.Context, record store.EditRecord) error
}

func (f *fakePersistence) GetProject(ctx context.Context, projectID string) (ProjectAccess, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return ProjectAccess{}, ErrProjectNotFound
	}
	return project, nil
}

func (f *fakePersistence) AppendEditRecord(ctx context.Context, record store.EditRecord) error {
	if f.appendFn != nil {
		if err := f.appendFn(ctx, record); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakePersistence) recorded() []store.EditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.EditRecord(nil), f.records...)
}

// steppingClock returns strictly increasing instants, one millisecond apart.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}
