package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/envnode/internal/bme280"
	"github.com/relabs-tech/envnode/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served on the local network
	},
}

// webEvent is one message pushed to dashboard clients.
type webEvent struct {
	Type    string          `json:"type"` // "reading" or "status"
	Payload json.RawMessage `json:"payload"`
}

// Dashboard keeps the last reading and status seen on the broker and
// serves them over HTTP and WebSocket.
type Dashboard struct {
	Log *logrus.Entry

	mu      sync.RWMutex
	reading json.RawMessage
	status  json.RawMessage
	clients map[chan webEvent]struct{}
}

// NewDashboard returns an empty dashboard.
func NewDashboard(log *logrus.Entry) *Dashboard {
	return &Dashboard{Log: log, clients: make(map[chan webEvent]struct{})}
}

// update stores a message of kind typ and fans it out to the clients.
// Slow clients miss events instead of blocking the broker callback.
func (d *Dashboard) update(typ string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("invalid %s payload", typ)
	}
	msg := json.RawMessage(append([]byte(nil), payload...))
	d.mu.Lock()
	defer d.mu.Unlock()
	switch typ {
	case "reading":
		d.reading = msg
	case "status":
		d.status = msg
	}
	for c := range d.clients {
		select {
		case c <- webEvent{Type: typ, Payload: msg}:
		default:
		}
	}
	return nil
}

func (d *Dashboard) subscribe() chan webEvent {
	c := make(chan webEvent, 8)
	d.mu.Lock()
	d.clients[c] = struct{}{}
	d.mu.Unlock()
	return c
}

func (d *Dashboard) unsubscribe(c chan webEvent) {
	d.mu.Lock()
	delete(d.clients, c)
	d.mu.Unlock()
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest", d.serveLast(func() json.RawMessage { return d.reading }))
	mux.HandleFunc("/api/status", d.serveLast(func() json.RawMessage { return d.status }))
	mux.HandleFunc("/api/registers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(bme280.RegisterMap()); err != nil {
			d.Log.WithError(err).Warn("json encode failed")
		}
	})
	mux.HandleFunc("/ws", d.serveWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexHTML)
	})
	return mux
}

func (d *Dashboard) serveLast(get func() json.RawMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.RLock()
		msg := get()
		d.mu.RUnlock()
		if msg == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(msg)
	}
}

func (d *Dashboard) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := d.subscribe()
	defer d.unsubscribe(events)

	// Current values first.
	d.mu.RLock()
	initial := []webEvent{}
	if d.reading != nil {
		initial = append(initial, webEvent{Type: "reading", Payload: d.reading})
	}
	if d.status != nil {
		initial = append(initial, webEvent{Type: "status", Payload: d.status})
	}
	d.mu.RUnlock()
	for _, ev := range initial {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Clients never send; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					d.Log.WithError(err).Debug("websocket closed")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// RunWeb subscribes to the node topics on the broker and serves the
// dashboard on cfg.Web.Listen until ctx is done.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	log := logrus.WithField("task", "web")
	d := NewDashboard(log)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDWeb).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.MQTT.ConnectTimeout)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect %s: %w", cfg.MQTT.Broker, token.Error())
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTT.Broker).Info("connected to broker")

	topics := map[string]string{cfg.MQTT.Topic: "reading", cfg.MQTT.StatusTopic: "status"}
	for topic, typ := range topics {
		typ := typ
		token := client.Subscribe(topic, cfg.MQTT.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if err := d.update(typ, msg.Payload()); err != nil {
				log.WithError(err).WithField("topic", msg.Topic()).Warn("message ignored")
			}
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		log.WithField("topic", topic).Info("subscribed")
	}

	srv := &http.Server{Addr: cfg.Web.Listen, Handler: d.Handler()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	log.WithField("listen", cfg.Web.Listen).Info("web server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>EnvNode</title></head>
<body>
<h1>EnvNode</h1>
<pre id="reading">waiting for data...</pre>
<pre id="status"></pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (e) => {
  const ev = JSON.parse(e.data);
  document.getElementById(ev.type).textContent = JSON.stringify(ev.payload, null, 2);
};
</script>
</body></html>
`
