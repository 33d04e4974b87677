package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/com"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/network/websocket"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrNotSent    = errors.New("not sent")
)

const eventBuffer = 32

// Client is a command issuer connection.
type Client struct {
	conn   *websocket.WS
	calls  *com.Map[string, chan api.In]
	events chan api.In
	log    *logger.Logger
}

func Dial(ctx context.Context, address string, log *logger.Logger) (*Client, error) {
	conn, err := websocket.Dial(ctx, address, log)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:   conn,
		calls:  com.NewMap[string, chan api.In](),
		events: make(chan api.In, eventBuffer),
		log:    log,
	}
	conn.OnMessage = c.handleMessage
	conn.Start()
	return c, nil
}

// Call sends the command and waits for its result.
func (c *Client) Call(ctx context.Context, t api.PT, payload any) (*api.ResultResponse, error) {
	id := com.NewUid().String()
	data, err := json.Marshal(api.Out{Id: id, T: t, Payload: payload})
	if err != nil {
		return nil, err
	}
	reply := make(chan api.In, 1)
	c.calls.Put(id, reply)
	defer c.calls.RemoveByKey(id)

	if !c.conn.Write(data) {
		return nil, ErrNotSent
	}
	select {
	case in := <-reply:
		res, err := api.UnwrapChecked[api.ResultResponse](in.Payload)
		if err != nil {
			return nil, err
		}
		return res, nil
	case <-c.conn.Done:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events returns the session events,
// the channel is not closed with the connection.
func (c *Client) Events() <-chan api.In { return c.events }

func (c *Client) Done() <-chan struct{} { return c.conn.Done }

func (c *Client) Close() { c.conn.Close() }

func (c *Client) handleMessage(message []byte) {
	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Warn().Err(err).Msg("bad packet")
		return
	}
	if in.T == api.Result && in.Id != "" {
		if reply, ok := c.calls.Pop(in.Id); ok {
			reply <- in
		}
		return
	}
	select {
	case c.events <- in:
	default:
		c.log.Warn().Str("t", in.T.String()).Msg("event dropped")
	}
}
