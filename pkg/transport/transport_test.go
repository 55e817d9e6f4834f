package transport

import (
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open("carrier-pigeon://coop")
	if err == nil || !strings.Contains(err.Error(), "unsupported transport scheme") {
		t.Errorf("Open() error = %v, want unsupported scheme", err)
	}
}

func TestSchemes(t *testing.T) {
	got := strings.Join(Schemes(), ",")
	for _, s := range []string{"mqtt", "udp", "ws"} {
		if !strings.Contains(got, s) {
			t.Errorf("Schemes() = %s, missing %s", got, s)
		}
	}
}

func TestUDPSend(t *testing.T) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	tr, err := Open("udp://" + l.LocalAddr().String())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer tr.Close()

	if err := tr.Send([]byte("0 7 t 1 2 3\n")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_ = l.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := l.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	if got := string(buf[:n]); got != "0 7 t 1 2 3\n" {
		t.Errorf("datagram = %q", got)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	ws, err := NewWebSocket("127.0.0.1:0", "/poses")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	if err := ws.Send([]byte("nobody listening")); err != nil {
		t.Errorf("Send() without clients error = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ws.Addr().String()+"/poses", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ws.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ws.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", ws.Clients())
	}

	tests := []struct {
		payload []byte
		kind    int
	}{
		{payload: []byte("1 3 t 0 0 1\n"), kind: websocket.TextMessage},
		{payload: []byte{0xa3, 0xff, 0x00}, kind: websocket.BinaryMessage},
	}
	for _, tt := range tests {
		if err := ws.Send(tt.payload); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if kind != tt.kind || string(got) != string(tt.payload) {
			t.Errorf("message = (%d, %q), want (%d, %q)", kind, got, tt.kind, tt.payload)
		}
	}
}

func TestMQTTTarget(t *testing.T) {
	tests := []struct {
		in         string
		broker     string
		topic      string
	}{
		{in: "mqtt://broker:1883/tracking/pose", broker: "tcp://broker:1883", topic: "tracking/pose"},
		{in: "mqtt://localhost:1883", broker: "tcp://localhost:1883", topic: defaultMQTTTopic},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		broker, topic := mqttTarget(u)
		if broker != tt.broker || topic != tt.topic {
			t.Errorf("mqttTarget(%s) = %s, %s, want %s, %s", tt.in, broker, topic, tt.broker, tt.topic)
		}
	}
}
