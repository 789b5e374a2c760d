package broker

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttSubprotocol   = "mqtt"
	maxWSMessageBytes = 1 << 20
	disconnectQuiesce = 250
)

// PahoDialer connects with MQTT 3.1.1. For ws:// and wss:// endpoints the
// network connection is a websocket carrying binary MQTT frames.
type PahoDialer struct {
	BrokerURL      string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

func (d PahoDialer) Dial(ctx context.Context, clientID string, onLost func(error)) (Conn, error) {
	brokerURL := strings.TrimSpace(d.BrokerURL)
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, err
	}
	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	keepAlive := d.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(timeout).
		SetKeepAlive(keepAlive).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if onLost != nil {
				onLost(err)
			}
		})
	if u.Scheme == "ws" || u.Scheme == "wss" {
		opts.SetCustomOpenConnectionFn(openWebsocket)
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, err
	}
	return &pahoConn{client: client}, nil
}

func openWebsocket(uri *url.URL, opts mqtt.ClientOptions) (net.Conn, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, uri.String(), &websocket.DialOptions{
		Subprotocols: []string{mqttSubprotocol},
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxWSMessageBytes)
	return websocket.NetConn(context.Background(), conn, websocket.MessageBinary), nil
}

type pahoConn struct {
	client mqtt.Client
}

func (c *pahoConn) Subscribe(ctx context.Context, topic string, qos byte, handler func(Message)) error {
	tok := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	return waitToken(ctx, tok)
}

func (c *pahoConn) Close() error {
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return err
		}
		return nil
	}
}

var _ Dialer = PahoDialer{}
