package browser

import (
	"context"
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClient is a proto.Client bound to ctx, as a rod page clone is.
type recordingClient struct {
	ctx    context.Context
	events []proto.InputDispatchKeyEventType
}

func (c *recordingClient) GetContext() context.Context { return c.ctx }

func (c *recordingClient) Call(ctx context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ev, ok := params.(proto.InputDispatchKeyEvent); ok {
		c.events = append(c.events, ev.Type)
	}
	return []byte("{}"), nil
}

func TestPressKeySendsDownAndUp(t *testing.T) {
	c := &recordingClient{ctx: context.Background()}
	require.NoError(t, pressKey(c, input.ArrowDown))
	assert.Equal(t, []proto.InputDispatchKeyEventType{
		proto.InputDispatchKeyEventTypeRawKeyDown,
		proto.InputDispatchKeyEventTypeKeyUp,
	}, c.events)
}

func TestPressKeyObservesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &recordingClient{ctx: ctx}

	err := pressKey(c, input.Enter)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.events)
}
